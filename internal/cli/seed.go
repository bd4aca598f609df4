package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ashureev/shopframes/internal/domain"
	"github.com/ashureev/shopframes/internal/pricing"
	"github.com/ashureev/shopframes/internal/store"
)

// SeedFile is the YAML layout accepted by seed.
type SeedFile struct {
	Stores []SeedStore `yaml:"stores"`
}

// SeedStore is one store and its products, in display order.
type SeedStore struct {
	ID         string        `yaml:"id"`
	Name       string        `yaml:"name"`
	ImageURL   string        `yaml:"image_url"`
	ShopDomain string        `yaml:"shop_domain"`
	OwnerEmail string        `yaml:"owner_email"`
	Products   []SeedProduct `yaml:"products"`
}

// SeedProduct is one product. Price is a dollar amount such as "25.00".
type SeedProduct struct {
	ID               string `yaml:"id"`
	Title            string `yaml:"title"`
	Description      string `yaml:"description"`
	Price            string `yaml:"price"`
	ImageURL         string `yaml:"image_url"`
	WalletAddress    string `yaml:"wallet_address"`
	ContactEmail     string `yaml:"contact_email"`
	Status           string `yaml:"status"`
	ShopifyVariantID string `yaml:"shopify_variant_id"`
}

// SeedResult counts what seed wrote.
type SeedResult struct {
	Stores   int `json:"stores"`
	Products int `json:"products"`
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "seed <file.yaml>",
		Short:         "Load stores and products into the catalog",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read seed file: %w", err)
			}
			var file SeedFile
			if err := yaml.Unmarshal(data, &file); err != nil {
				return fmt.Errorf("parse seed file: %w", err)
			}

			a, err := rootOpts.Open(rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := Seed(cmd.Context(), a.Catalog, file)
			if err != nil {
				return err
			}
			if rootOpts.Format == "json" {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(res)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "seeded %d stores, %d products\n", res.Stores, res.Products)
			return err
		},
	}
}

// Seed upserts every store and product in file.
func Seed(ctx context.Context, repo store.Repository, file SeedFile) (SeedResult, error) {
	var res SeedResult
	for _, s := range file.Stores {
		if s.ID == "" || s.Name == "" {
			return res, fmt.Errorf("store %q: id and name are required", s.ID)
		}
		if err := repo.UpsertStore(ctx, &domain.Store{
			ID:         s.ID,
			Name:       s.Name,
			ImageURL:   s.ImageURL,
			ShopDomain: s.ShopDomain,
			OwnerEmail: s.OwnerEmail,
		}); err != nil {
			return res, err
		}
		res.Stores++

		for i, p := range s.Products {
			var err error
			var cents int64
			if p.Price != "" {
				if cents, err = pricing.ParseUSD(p.Price); err != nil {
					return res, fmt.Errorf("product %q: %w", p.ID, err)
				}
			}
			if err := repo.UpsertProduct(ctx, &domain.Product{
				ID:               p.ID,
				StoreID:          s.ID,
				Position:         i + 1,
				Title:            p.Title,
				Description:      p.Description,
				PriceCents:       cents,
				ImageURL:         p.ImageURL,
				WalletAddress:    p.WalletAddress,
				ContactEmail:     p.ContactEmail,
				Status:           p.Status,
				ShopifyVariantID: p.ShopifyVariantID,
			}); err != nil {
				return res, err
			}
			res.Products++
		}
	}
	return res, nil
}
