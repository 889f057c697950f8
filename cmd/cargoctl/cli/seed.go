package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/cargo-ledger/internal/catalog"
	"github.com/odyssey-erp/cargo-ledger/internal/location"
	"github.com/odyssey-erp/cargo-ledger/internal/registry"
	"github.com/odyssey-erp/cargo-ledger/internal/settlement"
	"github.com/odyssey-erp/cargo-ledger/internal/vessel"
)

// SeedServices are the services the demo seed writes through.
type SeedServices struct {
	Registry   *registry.Service
	Vessels    *vessel.Service
	Catalog    *catalog.Service
	Settlement *settlement.Service
}

// SeedSummary reports what the seed created.
type SeedSummary struct {
	Ports     int   `json:"ports"`
	FreeZones int   `json:"free_zones"`
	Customers int   `json:"customers"`
	Vessels   int   `json:"vessels"`
	Products  int   `json:"products"`
	InvoiceID int64 `json:"invoice_id"`
}

func mt(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Seed loads a small demo data set: one vessel carrying steel into Tanjung
// Priok, cement stored in a free zone and a part-paid invoice.
func Seed(ctx context.Context, svc SeedServices, out io.Writer) (SeedSummary, error) {
	var sum SeedSummary
	step := func(msg string) { fmt.Fprintln(out, "→", msg) }

	step("Seeding locations...")
	priok, err := svc.Registry.CreatePort(ctx, registry.PortInput{Name: "Tanjung Priok", Code: "IDTPP", Country: "Indonesia", Capacity: mt("250000")})
	if err != nil {
		return sum, fmt.Errorf("seed port: %w", err)
	}
	if _, err := svc.Registry.CreatePort(ctx, registry.PortInput{Name: "Belawan", Code: "IDBLW", Country: "Indonesia"}); err != nil {
		return sum, fmt.Errorf("seed port: %w", err)
	}
	sum.Ports = 2
	batam, err := svc.Registry.CreateFreeZone(ctx, registry.FreeZoneInput{Name: "Batam FTZ", Address: "Batu Ampar, Batam", Area: mt("12000"), RentalRate: mt("4.5")})
	if err != nil {
		return sum, fmt.Errorf("seed free zone: %w", err)
	}
	sum.FreeZones = 1

	step("Seeding customers...")
	buyer, err := svc.Registry.CreateCustomer(ctx, registry.CustomerInput{Name: "PT Baja Prima", Email: "purchasing@bajaprima.example", Phone: "+62 21 555 0101"})
	if err != nil {
		return sum, fmt.Errorf("seed customer: %w", err)
	}
	if _, err := svc.Registry.CreateCustomer(ctx, registry.CustomerInput{Name: "CV Semen Nusantara", Email: "ops@semennusantara.example"}); err != nil {
		return sum, fmt.Errorf("seed customer: %w", err)
	}
	sum.Customers = 2

	step("Seeding vessel and manifest...")
	ship, err := svc.Vessels.Create(ctx, vessel.VesselInput{Name: "MV Sentosa Jaya", BLNumber: "BL-SJ-0001", PortID: &priok.ID})
	if err != nil {
		return sum, fmt.Errorf("seed vessel: %w", err)
	}
	sum.Vessels = 1

	rebar, err := svc.Catalog.Create(ctx, catalog.CreateInput{Name: "Rebar 16mm", Category: "steel", Unit: "MT", Location: location.Vessel(ship.ID), Quantity: mt("500")})
	if err != nil {
		return sum, fmt.Errorf("seed product: %w", err)
	}
	if _, err := svc.Catalog.Create(ctx, catalog.CreateInput{Name: "Portland Cement", Category: "cement", Unit: "MT", Location: location.FreeZone(batam.ID), Quantity: mt("1200")}); err != nil {
		return sum, fmt.Errorf("seed product: %w", err)
	}
	if _, err := svc.Catalog.Create(ctx, catalog.CreateInput{Name: "Wire Rod 8mm", Category: "steel", Unit: "MT", Location: location.Nowhere}); err != nil {
		return sum, fmt.Errorf("seed product: %w", err)
	}
	sum.Products = 3
	if _, err := svc.Vessels.AddItem(ctx, ship.ID, vessel.ManifestInput{ProductID: rebar.ID, DischargePortID: &priok.ID, Quantity: mt("300"), BLReference: "BL-SJ-0001"}); err != nil {
		return sum, fmt.Errorf("seed manifest: %w", err)
	}

	step("Seeding invoice...")
	due := time.Now().UTC().Add(30 * 24 * time.Hour)
	inv, err := svc.Settlement.Create(ctx, settlement.InvoiceInput{
		CustomerID: buyer.ID,
		IssueDate:  time.Now().UTC(),
		DueDate:    &due,
		Lines:      []settlement.LineInput{{ProductID: rebar.ID, Quantity: mt("200"), UnitPrice: mt("650")}},
	})
	if err != nil {
		return sum, fmt.Errorf("seed invoice: %w", err)
	}
	if _, err := svc.Settlement.Send(ctx, inv.ID); err != nil {
		return sum, fmt.Errorf("send invoice: %w", err)
	}
	if _, _, err := svc.Settlement.RecordPayment(ctx, inv.ID, settlement.PaymentInput{
		Amount:    mt("65000"),
		Method:    settlement.MethodBankTransfer,
		Reference: "TRF-0001",
	}); err != nil {
		return sum, fmt.Errorf("seed payment: %w", err)
	}
	sum.InvoiceID = inv.ID

	fmt.Fprintln(out, "✓ Seed complete at", time.Now().Format(time.RFC3339))
	return sum, nil
}
