// Пакет api — OpenAPI-описание REST API Quarantine Module.
// Из openapi.yaml генерируется internal/api/generated (oapi-codegen),
// тот же документ используется для проверки входящих запросов.
package api

import (
	_ "embed"
)

//go:embed openapi.yaml
var spec []byte

// Spec возвращает копию OpenAPI-документа.
func Spec() []byte {
	return append([]byte(nil), spec...)
}
