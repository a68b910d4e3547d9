package main

import (
	"crypto/ed25519"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"dag-ledger/config"
	"dag-ledger/db"
	"dag-ledger/handlers"
	"dag-ledger/logger"
	"dag-ledger/models"
	"dag-ledger/node"
	"dag-ledger/repository"
	"dag-ledger/routers"
	"dag-ledger/validators"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run one replica behind the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		return serve(cfg)
	},
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8080, "HTTP port")
	serveCmd.Flags().String("leveldb", "", "Block store path, in memory when empty")
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("leveldb.path", serveCmd.Flags().Lookup("leveldb"))
}

func serve(cfg *config.Config) error {
	logger.Logger.Info("Starting ledger server...")

	var store repository.BlockStore = repository.NewMemoryStore()
	if cfg.LevelDB.Path != "" {
		ldb, err := db.NewLevelDB(cfg.LevelDB.Path)
		if err != nil {
			logger.Logger.Error("Failed to open leveldb", zap.Error(err))
			return err
		}
		defer ldb.Close()
		store = repository.NewLevelDBStore(ldb)
	}

	var keys []*validators.Key
	var pubs []ed25519.PublicKey
	for _, seed := range cfg.Validators.Seeds {
		k := validators.NewKey([]byte(seed))
		keys = append(keys, k)
		pubs = append(pubs, k.Public())
	}
	registry, err := validators.NewRegistry(pubs)
	if err != nil {
		return err
	}
	var self *validators.Key
	if cfg.Validators.Self >= 0 {
		self = keys[cfg.Validators.Self]
	}

	raw, err := models.NewBlock(0, nil, []models.SystemTx{&models.Payload{Data: []byte(cfg.Genesis.Payload)}})
	if err != nil {
		return err
	}
	p, err := node.New(node.Config{
		Params:   cfg.Finality,
		Store:    store,
		Registry: registry,
		Key:      self,
	}, models.NewSignedBlock(raw, nil))
	if err != nil {
		logger.Logger.Error("Failed to start participant", zap.Error(err))
		return err
	}
	logger.Logger.Info("Participant ready",
		zap.String("validator", p.ID()),
		zap.String("genesis", p.Genesis().String()),
		zap.Int("blocks", p.Len()))

	h := handlers.NewHandler(p)
	r := mux.NewRouter()
	routers.RegisterRoutes(r, h)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil {
			logger.Logger.Info("Server stopped", zap.Error(err))
		}
	}()

	logger.Logger.Info("Server running on port", zap.Int("port", cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Logger.Info("Shutdown signal received, exiting...")
	return srv.Close()
}
