package app

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/rbright/hubdrive/internal/config"
	"github.com/rbright/hubdrive/internal/transport"
	"github.com/rbright/hubdrive/internal/transport/ble"
)

// commandScan lists named BLE advertisements, marking selector matches.
func (r Runner) commandScan(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	sel, err := transport.ParseSelector(cfg.Transport.Selector)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	seen := make(map[string]ble.Advertisement)
	scanner := ble.New(logger, ble.Options{})
	err = scanner.Scan(ctx, ms(cfg.Transport.DiscoveryTimeoutMS), func(adv ble.Advertisement) {
		seen[adv.Address] = adv
	})
	if err != nil && ctx.Err() == nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	if len(seen) == 0 {
		fmt.Fprintln(r.Stdout, "no BLE devices found")
		return 1
	}

	ads := make([]ble.Advertisement, 0, len(seen))
	for _, adv := range seen {
		ads = append(ads, adv)
	}
	sort.Slice(ads, func(i, j int) bool { return ads[i].Name < ads[j].Name })

	for _, adv := range ads {
		mark := " "
		if sel.Match(adv.Name) {
			mark = "*"
		}
		fmt.Fprintf(r.Stdout, "%s name=%q | address=%s | rssi=%d\n", mark, adv.Name, adv.Address, adv.RSSI)
	}
	return 0
}
