package registry

import (
	"github.com/nfrund/roomchat/internal/domain"
	"github.com/nfrund/roomchat/internal/pubsub"
)

// Shared service keys. Using constants prevents typos.
const (
	MessagesKey    Key[domain.MessageRepository]    = "core.messages"
	OnlineUsersKey Key[domain.OnlineUserRepository] = "core.online_users"
	UsersKey       Key[domain.UserRepository]       = "core.users"
	PublisherKey   Key[pubsub.Publisher]            = "core.publisher"
	SubscriberKey  Key[pubsub.Subscriber]           = "core.subscriber"
)
