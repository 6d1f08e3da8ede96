package dao

// AttributeDAO 属性表的数据访问对象（内部使用）
// 一行对应一个 (实例, 键, 值)，多值Term占多行；键和值均为百分号编码
type AttributeDAO struct {
	InstanceID string `db:"instance_id"`
	Key        string `db:"met_key"`
	Value      string `db:"met_val"`
}
