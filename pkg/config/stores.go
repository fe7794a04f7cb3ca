package config

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/marmos91/coordcore/pkg/exchange"
	"github.com/marmos91/coordcore/pkg/exchange/grpcexchange"
	"github.com/marmos91/coordcore/pkg/exchange/localexchange"
	"github.com/marmos91/coordcore/pkg/session"
	"github.com/marmos91/coordcore/pkg/store"
	"github.com/marmos91/coordcore/pkg/store/badger"
	"github.com/marmos91/coordcore/pkg/store/memory"
	"github.com/marmos91/coordcore/pkg/store/postgres"
)

// Backend is a storage backend that serves both entry and session records
// and can be shut down cleanly.
type Backend interface {
	store.EntryStore
	store.SessionStore
	Close() error
}

// closeNoop adapts a backend with no Close method (memory.Store) to the
// Backend interface.
type closeNoop struct {
	*memory.Store
}

func (closeNoop) Close() error { return nil }

// BuildBackend constructs the storage backend selected by cfg.Backend.
func BuildBackend(ctx context.Context, cfg StorageConfig, logger *slog.Logger) (Backend, error) {
	switch cfg.Backend {
	case "", "memory":
		return closeNoop{memory.New()}, nil
	case "badger":
		if cfg.Badger.Path == "" {
			return nil, fmt.Errorf("storage.badger.path is required for the badger backend")
		}
		return badger.Open(cfg.Badger.Path)
	case "postgres":
		pgCfg := &postgres.Config{
			Host:         cfg.Postgres.Host,
			Port:         cfg.Postgres.Port,
			Database:     cfg.Postgres.Database,
			User:         cfg.Postgres.User,
			Password:     cfg.Postgres.Password,
			SSLMode:      cfg.Postgres.SSLMode,
			MaxOpenConns: cfg.Postgres.MaxOpenConns,
			MaxIdleConns: cfg.Postgres.MaxIdleConns,
		}
		return postgres.Open(ctx, pgCfg, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend: %q", cfg.Backend)
	}
}

// BuildExchangeTransport constructs the cross-process notification
// transport selected by cfg.Transport. The "local" transport requires no
// network setup and is correct only within a single process; multi-node
// deployments must use "grpc" and configure peers. nodeIdentity identifies
// this node on outbound peer streams when cfg.GRPC.CredentialSecret is set;
// it is ignored otherwise.
func BuildExchangeTransport(cfg ExchangeConfig, nodeIdentity session.ID, logger *slog.Logger) (exchange.Transport, error) {
	switch cfg.Transport {
	case "", "local":
		return localexchange.New(localexchange.NewBus()), nil
	case "grpc":
		if cfg.GRPC.ListenAddress == "" {
			return nil, fmt.Errorf("exchange.grpc.listen_address is required for the grpc transport")
		}

		var credSvc *session.CredentialService
		var validate func(token string) error
		if cfg.GRPC.CredentialSecret != "" {
			var err error
			credSvc, err = session.NewCredentialService([]byte(cfg.GRPC.CredentialSecret), 0)
			if err != nil {
				return nil, fmt.Errorf("exchange.grpc.credential_secret: %w", err)
			}
			validate = func(token string) error {
				if token == "" {
					return fmt.Errorf("no credential presented")
				}
				_, err := credSvc.Validate(token)
				return err
			}
		}

		transport, err := grpcexchange.Listen(cfg.GRPC.ListenAddress, logger, validate)
		if err != nil {
			return nil, fmt.Errorf("failed to start grpc exchange listener: %w", err)
		}
		if credSvc != nil {
			token, err := credSvc.Issue(nodeIdentity)
			if err != nil {
				return nil, fmt.Errorf("failed to issue exchange credential: %w", err)
			}
			transport.SetCredential(token)
		}
		for _, peer := range cfg.GRPC.Peers {
			if err := transport.AddPeer(context.Background(), peer); err != nil {
				return nil, fmt.Errorf("failed to add exchange peer %q: %w", peer, err)
			}
		}
		return transport, nil
	default:
		return nil, fmt.Errorf("unknown exchange transport: %q", cfg.Transport)
	}
}
