package server

import (
	"github.com/nfrund/roomchat/internal/module"
	"github.com/nfrund/roomchat/internal/modules/chatroom"
)

// AppModules returns the application modules in boot order. This is the
// single source of truth for which features are enabled.
func AppModules() []module.Module {
	return []module.Module{
		chatroom.New(),
	}
}
