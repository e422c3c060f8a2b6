package log

import (
	"go.uber.org/zap"
)

const (
	FieldNameModule    = "module"
	FieldNameComponent = "component"
	FieldNameUser      = "user"
	FieldNameRemote    = "remote"
)

// FieldModule returns a zap field carrying the module name.
func FieldModule(module string) zap.Field {
	return zap.String(FieldNameModule, module)
}

// FieldComponent returns a zap field carrying the component name.
func FieldComponent(component string) zap.Field {
	return zap.String(FieldNameComponent, component)
}

// FieldUser returns a zap field carrying a chat username.
func FieldUser(user string) zap.Field {
	return zap.String(FieldNameUser, user)
}

// FieldRemote returns a zap field carrying the peer address.
func FieldRemote(addr string) zap.Field {
	return zap.String(FieldNameRemote, addr)
}
