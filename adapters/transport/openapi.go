package transport

import (
	_ "embed"
	"fmt"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"
	"github.com/gin-gonic/gin"
)

//go:embed openapi.yaml
var openapiContract []byte

// contractValidator валидирует входящие запросы по встроенному
// OpenAPI контракту. Маршруты вне контракта (например /metrics)
// пропускаются без валидации.
type contractValidator struct {
	spec   *openapi3.T
	router routers.Router
}

// newContractValidator загружает и проверяет встроенный контракт
func newContractValidator() (*contractValidator, error) {
	loader := openapi3.NewLoader()

	spec, err := loader.LoadFromData(openapiContract)
	if err != nil {
		return nil, fmt.Errorf("failed to parse OpenAPI contract: %w", err)
	}
	if err := spec.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI contract: %w", err)
	}

	// Маршрутизация только по пути: хост развертывания заранее неизвестен
	spec.Servers = nil

	router, err := legacy.NewRouter(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to create contract router: %w", err)
	}

	return &contractValidator{spec: spec, router: router}, nil
}

// middleware возвращает Gin middleware для валидации запросов
func (v *contractValidator) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route, pathParams, err := v.router.FindRoute(c.Request)
		if err != nil {
			c.Next()
			return
		}

		input := &openapi3filter.RequestValidationInput{
			Request:     c.Request,
			PathParams:  pathParams,
			Route:       route,
			QueryParams: c.Request.URL.Query(),
		}
		if err := openapi3filter.ValidateRequest(c.Request.Context(), input); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": contractErrorMessage(err)})
			return
		}

		c.Next()
	}
}

// contractErrorMessage сокращает многострочные ошибки kin-openapi
// до первой содержательной строки
func contractErrorMessage(err error) string {
	message := err.Error()
	if idx := strings.IndexByte(message, '\n'); idx > 0 {
		message = message[:idx]
	}
	return strings.TrimSpace(message)
}
