// Package ref 按 namespace + type 注册构造函数，通过配置创建对象
package ref

import (
	"reflect"
	"sync"

	"github.com/pkg/errors"
)

// TypeOptions 对象的配置描述
type TypeOptions struct {
	Namespace string `cfg:"namespace"`
	Type      string `cfg:"type"`
	Options   any    `cfg:"options"`
}

// Convertable 配置数据的自动转换
// 实现了该接口的 options 会被转换为构造函数期望的参数类型
type Convertable interface {
	ConvertTo(object any) error
}

type constructor struct {
	fn           reflect.Value
	hasOptions   bool
	returnsError bool
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// 构造函数支持 0 或 1 个参数，返回对象或 (对象, error)
func newConstructor(fn any) (*constructor, error) {
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func {
		return nil, errors.New("constructor must be a function")
	}
	ft := fv.Type()
	if ft.NumIn() > 1 {
		return nil, errors.Errorf("constructor must have 0 or 1 input parameters, got %d", ft.NumIn())
	}
	if ft.NumOut() != 1 && ft.NumOut() != 2 {
		return nil, errors.Errorf("constructor must have 1 or 2 return values, got %d", ft.NumOut())
	}
	if ft.NumOut() == 2 && !ft.Out(1).Implements(errorType) {
		return nil, errors.New("second return value must be error")
	}
	return &constructor{fn: fv, hasOptions: ft.NumIn() == 1, returnsError: ft.NumOut() == 2}, nil
}

func (c *constructor) call(options any) (any, error) {
	var args []reflect.Value
	if c.hasOptions {
		arg, err := c.convertOptions(options)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}

	results := c.fn.Call(args)
	if c.returnsError && !results[1].IsNil() {
		return nil, results[1].Interface().(error)
	}
	return results[0].Interface(), nil
}

func (c *constructor) convertOptions(options any) (reflect.Value, error) {
	paramType := c.fn.Type().In(0)
	if options == nil {
		return reflect.Zero(paramType), nil
	}

	if convertable, ok := options.(Convertable); ok {
		target := paramType
		if target.Kind() == reflect.Ptr {
			target = target.Elem()
		}
		v := reflect.New(target)
		if err := convertable.ConvertTo(v.Interface()); err != nil {
			return reflect.Value{}, errors.Wrapf(err, "failed to convert options to %v", paramType)
		}
		if paramType.Kind() == reflect.Ptr {
			return v, nil
		}
		return v.Elem(), nil
	}

	v := reflect.ValueOf(options)
	if v.Type().AssignableTo(paramType) {
		return v, nil
	}
	// 允许传入值而构造函数接收指针
	if paramType.Kind() == reflect.Ptr && v.Type().AssignableTo(paramType.Elem()) {
		p := reflect.New(paramType.Elem())
		p.Elem().Set(v)
		return p, nil
	}
	return reflect.Value{}, errors.Errorf("options type %v is not assignable to %v", v.Type(), paramType)
}

var constructors sync.Map

func key(namespace, typ string) string {
	return namespace + ":" + typ
}

func Register(namespace string, typ string, fn any) error {
	c, err := newConstructor(fn)
	if err != nil {
		return errors.WithMessagef(err, "register %s:%s failed", namespace, typ)
	}
	if old, ok := constructors.Load(key(namespace, typ)); ok {
		if old.(*constructor).fn.Pointer() == c.fn.Pointer() {
			return nil
		}
		return errors.Errorf("constructor for %s:%s already registered with different function", namespace, typ)
	}
	constructors.Store(key(namespace, typ), c)
	return nil
}

func MustRegister(namespace string, typ string, fn any) {
	if err := Register(namespace, typ, fn); err != nil {
		panic(err)
	}
}

func typeName[T any]() (string, string, error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.PkgPath() == "" || t.Name() == "" {
		return "", "", errors.Errorf("cannot determine package path or type name for %v", t)
	}
	return t.PkgPath(), t.Name(), nil
}

// RegisterT 以 T 的包路径和类型名作为 namespace 和 type
func RegisterT[T any](fn any) error {
	namespace, typ, err := typeName[T]()
	if err != nil {
		return err
	}
	return Register(namespace, typ, fn)
}

func MustRegisterT[T any](fn any) {
	if err := RegisterT[T](fn); err != nil {
		panic(err)
	}
}

func New(namespace string, typ string, options any) (any, error) {
	v, ok := constructors.Load(key(namespace, typ))
	if !ok {
		return nil, errors.Errorf("constructor not found for %s:%s", namespace, typ)
	}
	return v.(*constructor).call(options)
}

// NewT 按 T 查找构造函数并断言返回类型
func NewT[T any](options any) (T, error) {
	var zero T
	namespace, typ, err := typeName[T]()
	if err != nil {
		return zero, err
	}
	obj, err := New(namespace, typ, options)
	if err != nil {
		return zero, err
	}
	t, ok := obj.(T)
	if !ok {
		return zero, errors.Errorf("created object is %T, not %T", obj, zero)
	}
	return t, nil
}

// NewWithOptions 按 TypeOptions 创建对象
func NewWithOptions(options *TypeOptions) (any, error) {
	if options == nil {
		return nil, errors.New("type options is nil")
	}
	return New(options.Namespace, options.Type, options.Options)
}
