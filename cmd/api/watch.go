package main

import (
	"context"
	"fmt"

	"github.com/mcclellann/imarisha/pkg/stock"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// checkInventory logs every product at or below its low-stock threshold and
// returns how many there were.
func checkInventory(ctx context.Context, inventory *stock.Ledger, log *logrus.Logger) (int, error) {
	alerts, err := inventory.LowStockReport(ctx, 0)
	if err != nil {
		return 0, err
	}
	for _, a := range alerts {
		log.WithFields(logrus.Fields{
			"product_id": a.Product.ID,
			"product":    a.Product.Name,
			"quantity":   a.Quantity,
			"threshold":  a.Threshold,
			"level":      a.Level,
		}).Warn("Product stock below threshold")
	}
	return len(alerts), nil
}

// startInventoryWatch runs checkInventory on schedule, a standard cron
// expression or descriptor such as "@every 1h".
func startInventoryWatch(schedule string, inventory *stock.Ledger, log *logrus.Logger) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		n, err := checkInventory(context.Background(), inventory, log)
		if err != nil {
			log.WithError(err).Error("Inventory watch failed")
			return
		}
		log.WithField("alerts", n).Info("Inventory watch complete")
	})
	if err != nil {
		return nil, fmt.Errorf("invalid inventory watch schedule %q: %w", schedule, err)
	}
	c.Start()
	return c, nil
}
