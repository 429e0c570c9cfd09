package utils

import (
	"encoding/json"
	"log"
	"net/http"
)

// RespondJSON 以给定状态码写出JSON负载，面板的只读接口统一经由这里出站。
func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[http] encode response failed: %v", err)
	}
}

// RespondError 以固定的 {"error": message} 形状写出错误响应。
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, map[string]string{"error": message})
}
