package mysql

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

type ParamType int

const (
	TypeInferred ParamType = iota
	TypeString
	TypeInt
	TypeFloat
	TypeBool
	TypeTime
	TypeJSON
	TypeBytes
)

func (t ParamType) String() string {
	switch t {
	case TypeInferred:
		return "inferred"
	case TypeString:
		return "string"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeBool:
		return "bool"
	case TypeTime:
		return "time"
	case TypeJSON:
		return "json"
	case TypeBytes:
		return "bytes"
	}
	return "unknown"
}

// Param is a named input bind. Inferred params pass their value to the
// driver untouched; typed params are converted explicitly before the bind.
type Param struct {
	Name  string
	Type  ParamType
	Value interface{}
}

func Inferred(name string, value interface{}) Param {
	return Param{Name: name, Value: value}
}

func Typed(name string, paramType ParamType, value interface{}) Param {
	return Param{Name: name, Type: paramType, Value: value}
}

func (p Param) bindValue() (interface{}, error) {
	value, err := convertValue(p.Type, p.Value)
	if err != nil {
		return nil, errors.Wrapf(err, "param %q", p.Name)
	}
	return value, nil
}

func bindParams(inputs []Param) (map[string]interface{}, error) {
	argMap := make(map[string]interface{}, len(inputs))
	for _, input := range inputs {
		value, err := input.bindValue()
		if err != nil {
			return nil, err
		}
		argMap[input.Name] = value
	}
	return argMap, nil
}

// OutParam names a result column and the destination its value is
// scanned into.
type OutParam struct {
	Name string
	Dest interface{}
}

func Out(name string, dest interface{}) OutParam {
	return OutParam{Name: name, Dest: dest}
}

func convertValue(paramType ParamType, value interface{}) (interface{}, error) {
	if value == nil || paramType == TypeInferred {
		return value, nil
	}

	switch paramType {
	case TypeString:
		switch v := value.(type) {
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		case fmt.Stringer:
			return v.String(), nil
		}
	case TypeInt:
		switch v := value.(type) {
		case int:
			return int64(v), nil
		case int8:
			return int64(v), nil
		case int16:
			return int64(v), nil
		case int32:
			return int64(v), nil
		case int64:
			return v, nil
		case uint32:
			return int64(v), nil
		}
	case TypeFloat:
		switch v := value.(type) {
		case float32:
			return float64(v), nil
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		}
	case TypeBool:
		if v, ok := value.(bool); ok {
			return v, nil
		}
	case TypeTime:
		switch v := value.(type) {
		case time.Time:
			return v, nil
		case string:
			parsed, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return nil, errors.WithStack(err)
			}
			return parsed, nil
		}
	case TypeJSON:
		data, err := json.Marshal(value)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		return data, nil
	case TypeBytes:
		switch v := value.(type) {
		case []byte:
			return v, nil
		case string:
			return []byte(v), nil
		}
	}

	return nil, errors.Errorf("cannot bind %T as %s", value, paramType)
}
