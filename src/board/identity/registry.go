// Package identity keeps per-wallet profile and session records.
package identity

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stake-plus/govboard/src/board/assets"
	"github.com/stake-plus/govboard/src/board/data"
	"github.com/stake-plus/govboard/src/board/types"
)

// AssetRemover deletes stored files; missing files must not be an error.
type AssetRemover interface {
	RemoveAsset(path string) error
}

// Patch lists the caller-overridable fields. Nil fields leave the stored
// value untouched. RegisteredAt, LastSessionAt and AvatarURL are managed by
// the registry itself.
type Patch struct {
	DisplayName *string
	Banned      *bool
	Balance     *decimal.Decimal
	KYC         *bool
}

type Registry struct {
	store  data.Store
	assets AssetRemover
	now    func() time.Time
}

// NewRegistry wires a registry; now defaults to time.Now.
func NewRegistry(store data.Store, remover AssetRemover, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{store: store, assets: remover, now: now}
}

// Upsert creates the record on first contact, applies patch, stamps the
// session time and swaps the avatar when newAvatarURL is set and differs
// from the stored one.
func (r *Registry) Upsert(ctx context.Context, address string, patch Patch, newAvatarURL string) (types.Identity, error) {
	if address == "" {
		return types.Identity{}, fmt.Errorf("%w: empty address", types.ErrInvalidDraft)
	}

	var rec types.Identity
	found, err := r.store.Get(ctx, data.Addresses, address, &rec)
	if err != nil {
		return types.Identity{}, err
	}
	now := r.now().Unix()
	if !found {
		rec = types.Identity{RegisteredAt: now}
	}

	if newAvatarURL != "" && newAvatarURL != rec.AvatarURL {
		if rec.AvatarURL != "" && r.assets != nil {
			if err := r.assets.RemoveAsset(assets.AvatarPath(rec.AvatarURL)); err != nil {
				log.Printf("identity: remove old avatar for %s: %v", address, err)
			}
		}
		rec.AvatarURL = newAvatarURL
	}

	rec = merge(rec, patch)
	rec.LastSessionAt = now
	rec.Address = ""

	if err := r.store.Set(ctx, data.Addresses, address, rec); err != nil {
		return types.Identity{}, err
	}

	var stored types.Identity
	if _, err := r.store.Get(ctx, data.Addresses, address, &stored); err != nil {
		return types.Identity{}, err
	}
	stored.Address = address
	return stored, nil
}

func merge(rec types.Identity, p Patch) types.Identity {
	if p.DisplayName != nil {
		rec.DisplayName = *p.DisplayName
	}
	if p.Banned != nil {
		b := *p.Banned
		rec.Banned = &b
	}
	if p.Balance != nil {
		rec.Balance = &types.Amount{Decimal: *p.Balance}
	}
	if p.KYC != nil {
		k := *p.KYC
		rec.KYC = &k
	}
	// not banned is stored as absence
	if rec.Banned != nil && !*rec.Banned {
		rec.Banned = nil
	}
	return rec
}

func (r *Registry) Get(ctx context.Context, address string) (types.Identity, bool, error) {
	var rec types.Identity
	found, err := r.store.Get(ctx, data.Addresses, address, &rec)
	if err != nil || !found {
		return types.Identity{}, found, err
	}
	rec.Address = address
	return rec, true, nil
}

// Count is the number of known addresses.
func (r *Registry) Count(ctx context.Context) (int64, error) {
	return r.store.Count(ctx, data.Addresses)
}

// Lookup resolves the username and avatar shown next to content written by
// address. Lookup failures degrade to the shortened address.
func (r *Registry) Lookup(ctx context.Context, address string) (username, avatarURL string) {
	rec, found, err := r.Get(ctx, address)
	if err != nil {
		log.Printf("identity: lookup %s: %v", address, err)
	}
	if !found {
		return ShortAddress(address), ""
	}
	return DisplayName(rec, address), rec.AvatarURL
}

func DisplayName(rec types.Identity, address string) string {
	if rec.DisplayName != "" {
		return rec.DisplayName
	}
	return ShortAddress(address)
}

// ShortAddress abbreviates a wallet address to its first and last four
// characters.
func ShortAddress(address string) string {
	runes := []rune(address)
	if len(runes) <= 10 {
		return address
	}
	return string(runes[:4]) + "..." + string(runes[len(runes)-4:])
}
