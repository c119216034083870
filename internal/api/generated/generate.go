package generated

//go:generate go run github.com/oapi-codegen/oapi-codegen/v2/cmd/oapi-codegen@v2.4.1 --config=../openapi/oapi-codegen.yaml ../openapi/openapi.yaml
