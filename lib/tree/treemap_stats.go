package tree

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	TreeMapStatsName = "xcoll/treemap"
)

var (
	leftRotationAttrs  = metric.WithAttributeSet(attribute.NewSet(attribute.String("treemap.rotation.direction", "left")))
	rightRotationAttrs = metric.WithAttributeSet(attribute.NewSet(attribute.String("treemap.rotation.direction", "right")))
	rootRotationAttrs  = metric.WithAttributeSet(attribute.NewSet(attribute.String("treemap.rotation.direction", "root")))
)

type treeMapStats struct {
	size            metric.Int64UpDownCounter
	rotations       metric.Int64Counter
	insertRebalance metric.Int64Counter
	removeRebalance metric.Int64Counter
	duplicates      metric.Int64Counter
}

func (stats *treeMapStats) RecordSize(delta int64) {
	if stats == nil || delta == 0 {
		return
	}
	stats.size.Add(context.Background(), delta)
}

// IncreaseRotationCount counts a rotation by its direction.
// The rotations that replace the root are counted as Root.
func (stats *treeMapStats) IncreaseRotationCount(dir RBDirection) {
	if stats == nil {
		return
	}
	var attrs metric.AddOption
	switch dir {
	case Root:
		attrs = rootRotationAttrs
	case Right:
		attrs = rightRotationAttrs
	default:
		attrs = leftRotationAttrs
	}
	stats.rotations.Add(context.Background(), 1, attrs)
}

func (stats *treeMapStats) IncreaseInsertRebalanceCount() {
	if stats == nil {
		return
	}
	stats.insertRebalance.Add(context.Background(), 1)
}

func (stats *treeMapStats) IncreaseRemoveRebalanceCount() {
	if stats == nil {
		return
	}
	stats.removeRebalance.Add(context.Background(), 1)
}

func (stats *treeMapStats) IncreaseDuplicateCount() {
	if stats == nil {
		return
	}
	stats.duplicates.Add(context.Background(), 1)
}

// The meter provider falls back to the otel global one.
func newTreeMapStats(name string, mp metric.MeterProvider) *treeMapStats {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meterName := TreeMapStatsName
	if name != "" {
		meterName = fmt.Sprintf("%s/%s", TreeMapStatsName, name)
	}
	meter := mp.Meter(meterName)
	return &treeMapStats{
		size: lo.Must[metric.Int64UpDownCounter](meter.
			Int64UpDownCounter(
				"treemap.size",
				metric.WithDescription("The number of key-value pairs in the treemap."),
			),
		),
		rotations: lo.Must[metric.Int64Counter](meter.
			Int64Counter(
				"treemap.rotations",
				metric.WithDescription("The number of rotations made by the rebalancing."),
			),
		),
		insertRebalance: lo.Must[metric.Int64Counter](meter.
			Int64Counter(
				"treemap.insert.rebalances",
				metric.WithDescription("The number of the rebalancing steps after insertions."),
			),
		),
		removeRebalance: lo.Must[metric.Int64Counter](meter.
			Int64Counter(
				"treemap.remove.rebalances",
				metric.WithDescription("The number of the rebalancing steps after removals."),
			),
		),
		duplicates: lo.Must[metric.Int64Counter](meter.
			Int64Counter(
				"treemap.add.duplicates",
				metric.WithDescription("The number of rejected insertions of an existing key."),
			),
		),
	}
}
