package sandbox

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/dop251/goja"
)

func deepEqualValues(rt *goja.Runtime, a, b goja.Value) bool {
	return reflect.DeepEqual(a.Export(), b.Export())
}

func containsValue(rt *goja.Runtime, actual goja.Value, needle string) bool {
	exported := actual.Export()
	switch v := exported.(type) {
	case string:
		return strings.Contains(v, needle)
	case []any:
		for _, item := range v {
			if fmt.Sprintf("%v", item) == needle {
				return true
			}
		}
		return false
	default:
		return strings.Contains(actual.String(), needle)
	}
}

func regexpMatch(pattern, s string) (bool, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, err
	}
	return re.MatchString(s), nil
}
