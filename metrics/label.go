package metrics

// Label 指标标签，为指标添加维度信息
//
// 标签值应保持低基数：outcome、state 这类枚举值适合作为标签，
// 节点 ID、资源 ID 这类无界取值不适合。
type Label struct {
	Key   string
	Value string
}

// L 便捷构造函数
//
//	counter.Inc(ctx, metrics.L("outcome", "granted"))
func L(key, value string) Label {
	return Label{Key: key, Value: value}
}
