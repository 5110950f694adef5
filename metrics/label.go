package metrics

// Label 指标标签，为指标添加维度信息
//
// 标签值应相对稳定，避免地址、客户端名称之类的高基数取值。
type Label struct {
	Key   string
	Value string
}

// L 便捷构造函数，创建一个 Label 实例
//
//	counter.Inc(ctx, metrics.L("outcome", "success"))
func L(key, value string) Label {
	return Label{Key: key, Value: value}
}
