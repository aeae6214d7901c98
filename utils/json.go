package utils

import (
	"fmt"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
)

// apiJSON does not escape HTML and decodes numbers as json.Number so large
// integers and decimals reach the loader intact.
var apiJSON = sonic.Config{
	EscapeHTML: false,
	UseNumber:  true,
}.Froze()

type NoEscapeJSONSerializer struct{}

func (d NoEscapeJSONSerializer) Serialize(c echo.Context, i interface{}, indent string) error {
	enc := apiJSON.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (d NoEscapeJSONSerializer) Deserialize(c echo.Context, i interface{}) error {
	err := apiJSON.NewDecoder(c.Request().Body).Decode(i)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("error decoding request body: %s", err.Error())).SetInternal(err)
	}
	return nil
}

// UnmarshalJSON decodes b with the same settings as request bodies.
func UnmarshalJSON(b []byte, v any) error {
	return apiJSON.Unmarshal(b, v)
}
