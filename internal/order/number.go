package order

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// NumberGenerator issues human-facing order numbers. Snowflake ids keep them
// unique across instances without a store round-trip.
type NumberGenerator struct {
	node *snowflake.Node
}

// NewNumberGenerator creates a generator for the given instance id (0–1023).
func NewNumberGenerator(nodeID int64) (*NumberGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("order number generator: %w", err)
	}
	return &NumberGenerator{node: node}, nil
}

// Next returns the next order number.
func (g *NumberGenerator) Next() string {
	return "SM-" + g.node.Generate().String()
}
