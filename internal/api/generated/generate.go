// Пакет generated — типы и chi-сервер, сгенерированные oapi-codegen
// из api/openapi.yaml. Файл generated.go не редактируется вручную.
package generated

//go:generate go run github.com/oapi-codegen/oapi-codegen/v2/cmd/oapi-codegen@v2.4.1 --config=oapi-codegen.yaml ../../../api/openapi.yaml
