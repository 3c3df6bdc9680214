package cli

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/goforj/spot"
)

// storeConfig layers the config file, then SPOT_* variables, then flags.
func (o *options) storeConfig() (spot.StoreConfig, error) {
	var cfg spot.StoreConfig
	if o.configPath != "" {
		loaded, err := spot.LoadStoreConfig(o.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	cfg, err := spot.OverlayEnv(cfg, spot.DefaultEnvPrefix)
	if err != nil {
		return cfg, err
	}
	if o.driver != "" {
		cfg.Driver = spot.Driver(o.driver)
	}
	if o.prefix != "" {
		cfg.Prefix = o.prefix
	}
	if o.fileDir != "" {
		cfg.FileDir = o.fileDir
	}
	if o.redisAddr != "" {
		cfg.RedisAddr = o.redisAddr
	}
	if cfg.Driver == "" {
		return cfg, errors.Mark(errors.New("no store driver configured; pass --driver, --config or SPOT_DRIVER"), errUsage)
	}
	if !cfg.Driver.Valid() {
		return cfg, errors.Mark(errors.Wrapf(spot.ErrUnknownDriver, "%q", cfg.Driver), errUsage)
	}
	return cfg, nil
}

func (o *options) openStore(ctx context.Context) (spot.Store, func(), error) {
	cfg, err := o.storeConfig()
	if err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	store, err := spot.NewStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	o.log.Debug("store opened", zap.String("driver", string(cfg.Driver)), zap.String("prefix", cfg.Prefix))
	closer := func() {
		if err := spot.CloseStore(store); err != nil {
			o.log.Warn("close store", zap.Error(err))
		}
		_ = o.log.Sync()
	}
	return store, closer, nil
}

func (o *options) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.timeout)
}
