// openapi.go — проверка входящих запросов по OpenAPI-документу (kin-openapi).
package middleware

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"

	apierrors "github.com/bigkaa/goartstore/quarantine-module/internal/api/errors"
)

// maxJSONBody — предел JSON-тела запроса; multipart-загрузки не ограничиваются здесь.
const maxJSONBody = 1 << 20

// OpenAPIValidator возвращает middleware, проверяющий параметры и тело
// запроса по документу spec. Тело multipart-загрузки не проверяется:
// оно потоково разбирается обработчиком. Запросы к путям вне документа
// пропускаются без проверки (404/405 отвечает роутер).
func OpenAPIValidator(spec []byte) (func(http.Handler) http.Handler, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(spec)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки OpenAPI: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("некорректный OpenAPI-документ: %w", err)
	}
	// Пути сопоставляются без учёта servers: сервис не знает внешний адрес.
	doc.Servers = nil
	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("ошибка построения маршрутов OpenAPI: %w", err)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, pathParams, err := router.FindRoute(r)
			if err != nil {
				var routeErr *routers.RouteError
				if errors.As(err, &routeErr) {
					next.ServeHTTP(w, r)
					return
				}
				apierrors.ValidationError(w, err.Error())
				return
			}

			multipart := isMultipart(r)
			if !multipart && r.Body != nil && r.Body != http.NoBody {
				r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
			}

			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
				Options: &openapi3filter.Options{
					ExcludeRequestBody: multipart,
					AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
				},
			}
			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				apierrors.ValidationError(w, validationMessage(err))
				return
			}
			next.ServeHTTP(w, r)
		})
	}, nil
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// validationMessage — краткое описание ошибки без дампа схемы.
func validationMessage(err error) string {
	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) {
		switch {
		case reqErr.Parameter != nil:
			return fmt.Sprintf("Параметр %s: %s", reqErr.Parameter.Name, reqErr.Err)
		case reqErr.RequestBody != nil:
			var schemaErr *openapi3.SchemaError
			if errors.As(reqErr.Err, &schemaErr) {
				return "Тело запроса: " + schemaErr.Reason
			}
			if reqErr.Err != nil {
				return "Тело запроса: " + reqErr.Err.Error()
			}
			return "Тело запроса: " + reqErr.Reason
		}
	}
	return err.Error()
}
