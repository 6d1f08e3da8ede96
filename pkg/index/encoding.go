package index

import (
	"net/url"
)

// Encode 对键和值做百分号编码（UTF-8，空格编码为+）
// 目的是保证任意字符能安全嵌入单引号字面量并原样还原，不是防注入手段
func Encode(s string) string {
	return url.QueryEscape(s)
}

// Decode Encode 的逆操作
func Decode(s string) (string, error) {
	return url.QueryUnescape(s)
}
