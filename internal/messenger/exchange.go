package messenger

import "github.com/streadway/amqp"

type exchange struct {
	Name        string
	Type        string
	Durable     bool
	AutoDeleted bool
	Internal    bool
	NoWait      bool
	Arguments   amqp.Table
}

var exchanges = map[Item]exchange{
	MarketplaceEvents: {
		Name:        string(MarketplaceEvents),
		Type:        "topic",
		Durable:     true,
		AutoDeleted: false,
		Internal:    false,
		NoWait:      false,
		Arguments:   nil,
	},
}

func exchangeFor(item Item, name string) (exchange, bool) {
	ex, ok := exchanges[item]
	if ok && name != "" {
		ex.Name = name
	}

	return ex, ok
}
