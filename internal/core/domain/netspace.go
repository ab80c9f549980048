package domain

import "math/big"

// NetspaceSample is a point-in-time network size reading.
type NetspaceSample struct {
	Timestamp int64 // epoch seconds
	Netspace  *big.Int
}
