package repository

import "github.com/goccy/go-json"

// mustJSON 序列化 JSON 列的值；模型字段均为可序列化的普通结构
func mustJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

// nullableJSON nil 指针写入 SQL NULL
func nullableJSON[T any](v *T) interface{} {
	if v == nil {
		return nil
	}
	return mustJSON(v)
}
