package router

import (
	"context"
	"net/http"

	accountsvc "folio-backend/internal/application/accounts"
	assetsvc "folio-backend/internal/application/assets"
	holdsvc "folio-backend/internal/application/holdings"
	schemasvc "folio-backend/internal/application/schemas"
	"folio-backend/internal/catalog"
	"folio-backend/internal/config"
	"folio-backend/internal/fx"
	"folio-backend/internal/infrastructure/database"
	accounthandler "folio-backend/internal/interfaces/handlers/accounts"
	assethandler "folio-backend/internal/interfaces/handlers/assets"
	fxhandler "folio-backend/internal/interfaces/handlers/fxrates"
	healthhandler "folio-backend/internal/interfaces/handlers/health"
	holdhandler "folio-backend/internal/interfaces/handlers/holdings"
	schemahandler "folio-backend/internal/interfaces/handlers/schemas"
	"folio-backend/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Deps lets callers (tests, the serverless entry) supply an already open
// database or Redis client instead of dialing from config.
type Deps struct {
	DB    *gorm.DB
	Redis *redis.Client
}

func CreateApp(cfg *config.Config) (*fiber.App, *gorm.DB, *redis.Client, error) {
	return CreateAppWith(cfg, Deps{})
}

func CreateAppWith(cfg *config.Config, deps Deps) (*fiber.App, *gorm.DB, *redis.Client, error) {
	db := deps.DB
	if db == nil {
		var err error
		db, err = database.Open(cfg.DatabaseURL, cfg.LogLevel == "debug")
		if err != nil {
			return nil, nil, nil, err
		}
	}
	if cfg.AutoMigrate {
		if err := database.AutoMigrate(db); err != nil {
			return nil, nil, nil, err
		}
	}

	rdb := deps.Redis
	if rdb == nil && cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, err
		}
		rdb = redis.NewClient(opt)
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Warn().Err(err).Msg("redis unreachable, fx cache and request stats disabled")
			_ = rdb.Close()
			rdb = nil
		}
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler,
		EnableTrustedProxyCheck: true,
	})

	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix:  cfg.CORSAllowedSuffix,
		AllowLocalhost: cfg.Env != "production",
	}))
	app.Use(middleware.Tracing())
	app.Use(middleware.HealthMarker(rdb))
	app.Use(middleware.RouteLogger())

	hh := &healthhandler.Handlers{Rdb: rdb, DB: db, HealthAdminKey: cfg.HealthAdminKey}
	app.Get("/health/json", hh.JSON)
	app.Get("/health/errors", hh.Errors)
	app.Get("/health/reset", hh.Reset)

	// FX lookups read through Redis when it is available.
	store := &fx.Store{DB: db}
	var rates fx.Lookup = store
	if rdb != nil {
		rates = &fx.CachedLookup{Next: store, Rdb: rdb, TTL: cfg.FxCacheTTL}
	}

	engine := schemasvc.NewService(db, catalog.DefaultTemplates(), catalog.DefaultConstraints(), rates)
	api := app.Group("/api/v1")

	// Schemas
	sh := &schemahandler.Handlers{Service: engine}
	api.Get("/templates", sh.Templates)
	api.Post("/accounts/:account_id/schema", sh.EnsureSchema)
	api.Get("/accounts/:account_id/table", sh.AccountTable)
	api.Get("/accounts/:account_id/table.csv", sh.AccountTableCSV)
	api.Get("/holdings/:holding_id/row", sh.HoldingRow)
	sg := api.Group("/schemas/:schema_id")
	sg.Post("/columns/custom", sh.AddCustomColumn)
	sg.Post("/columns/calculated", sh.AddCalculatedColumn)
	sg.Post("/columns/system", sh.AddSystemColumn)
	sg.Put("/columns/order", sh.ReorderColumns)
	sg.Post("/recompute", sh.Recompute)
	api.Patch("/columns/:column_id", sh.RenameColumn)
	api.Put("/columns/:column_id/formula", sh.UpdateFormula)
	api.Delete("/columns/:column_id", sh.DeleteColumn)
	api.Patch("/columns/:column_id/constraints/:name", sh.UpdateConstraint)
	api.Put("/values/:value_id", sh.SetValue)
	api.Delete("/values/:value_id/override", sh.RevertValue)

	// Portfolios and accounts
	ah := &accounthandler.Handlers{Service: &accountsvc.Service{DB: db, Schemas: engine}}
	api.Post("/portfolios", ah.CreatePortfolio)
	api.Get("/portfolios/:portfolio_id", ah.GetPortfolio)
	api.Patch("/portfolios/:portfolio_id", ah.UpdateProfileCurrency)
	api.Get("/portfolios/:portfolio_id/accounts", ah.ListAccounts)
	api.Post("/accounts", ah.CreateAccount)
	api.Get("/accounts/:account_id", ah.GetAccount)
	api.Delete("/accounts/:account_id", ah.DeleteAccount)

	// Assets
	asth := &assethandler.Handlers{Service: &assetsvc.Service{DB: db, Schemas: engine}}
	api.Post("/assets", asth.CreateAsset)
	api.Get("/assets", asth.ListAssets)
	api.Get("/assets/:asset_id", asth.GetAsset)
	api.Patch("/assets/:asset_id/price", asth.UpdatePrice)

	// Holdings
	holdh := &holdhandler.Handlers{Service: &holdsvc.Service{DB: db, Schemas: engine}}
	api.Get("/accounts/:account_id/holdings", holdh.ViewHoldings)
	api.Post("/holdings", holdh.CreateHolding)
	api.Get("/holdings/:holding_id", holdh.ViewHolding)
	api.Patch("/holdings/:holding_id", holdh.UpdateHolding)
	api.Delete("/holdings/:holding_id", holdh.DeleteHolding)

	// FX rates
	fxh := &fxhandler.Handlers{Store: store, Schemas: engine}
	api.Get("/fx-rates", fxh.ListRates)
	api.Put("/fx-rates", fxh.SetRate)

	return app, db, rdb, nil
}

func Handler(app *fiber.App) http.Handler {
	return adaptor.FiberApp(app)
}
