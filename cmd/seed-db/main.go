package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-fulfillment/internal/domain/member"
	"github.com/xenking/kart-fulfillment/internal/domain/product"
	"github.com/xenking/kart-fulfillment/internal/repository"
)

type productJSON struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	ImagePath   string          `json:"image_path"`
	Stock       struct {
		Quantity int    `json:"quantity"`
		Status   string `json:"status"`
	} `json:"stock"`
}

type memberJSON struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
	Email    string `json:"email"`
	Address  string `json:"address"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
		membersFile  string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&membersFile, "members-file", "db/seed/members.json", "path to members JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, membersFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, membersFile string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, repository.NewProductRepository(pool), productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedMembers(ctx, repository.NewMemberRepository(pool), membersFile); err != nil {
		return errors.Wrap(err, "seed members")
	}

	return nil
}

func seedProducts(ctx context.Context, repo *repository.ProductRepository, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, in := range products {
		p := product.Product{
			ID:          in.ID,
			Name:        in.Name,
			Price:       in.Price,
			Description: in.Description,
			ImagePath:   in.ImagePath,
			Stock: product.Stock{
				Quantity: in.Stock.Quantity,
				Status:   product.Status(in.Stock.Status),
			},
		}
		if p.Stock.Status == "" {
			p.Stock.Status = product.StatusInStock
			if p.Stock.Quantity == 0 {
				p.Stock.Status = product.StatusOutOfStock
			}
		}

		if err := repo.Upsert(ctx, &p); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

func seedMembers(ctx context.Context, repo *repository.MemberRepository, membersFile string) error {
	slog.Info("reading members file", slog.String("path", membersFile))

	data, err := os.ReadFile(membersFile)
	if err != nil {
		return errors.Wrap(err, "read members file")
	}

	var members []memberJSON
	if err := json.Unmarshal(data, &members); err != nil {
		return errors.Wrap(err, "parse members JSON")
	}

	slog.Info("upserting members", slog.Int("count", len(members)))

	for _, in := range members {
		m := member.Member{
			ID:       in.ID,
			Nickname: in.Nickname,
			Email:    in.Email,
			Address:  in.Address,
		}
		if err := repo.Upsert(ctx, &m); err != nil {
			return errors.Wrapf(err, "upsert member %s", m.ID)
		}

		slog.Info("upserted member", slog.String("id", m.ID), slog.String("nickname", m.Nickname))
	}

	return nil
}
