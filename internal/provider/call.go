package provider

import (
	ethereum "github.com/ethereum/go-ethereum"
)

func callToEthereum(c Call) ethereum.CallMsg {
	return ethereum.CallMsg{
		From:  c.From,
		To:    c.To,
		Value: c.Value,
		Data:  c.Data,
	}
}
