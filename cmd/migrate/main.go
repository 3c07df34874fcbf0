package main

import (
	"context"
	"flag"

	"github.com/TokDenis/awblog/config"
	"github.com/TokDenis/awblog/storage"
	"github.com/rs/zerolog/log"
)

// migrate copies every post document of the file backend into the posts
// table, keeping ids, views and metadata. Re-running it overwrites rows.
func main() {
	var configFile, from, driver, dsn string
	flag.StringVar(&configFile, "config", "", "path to a YAML config file")
	flag.StringVar(&from, "from", "", "posts directory to read (default storage.posts_dir)")
	flag.StringVar(&driver, "driver", "", "table driver (default storage.driver)")
	flag.StringVar(&dsn, "dsn", "", "table dsn (default storage.dsn)")
	flag.Parse()

	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	config.SetupLogging(cfg.Log)

	if from == "" {
		from = cfg.Storage.PostsDir
	}
	if driver == "" {
		driver = cfg.Storage.Driver
	}
	if dsn == "" {
		dsn = cfg.Storage.DSN
	}

	src, err := storage.NewFileStore(from, storage.Defaults{Author: cfg.Blog.DefaultAuthor})
	if err != nil {
		log.Fatal().Err(err).Msg("open posts dir")
	}

	dst, err := storage.OpenTableStore(driver, dsn, storage.Defaults{Author: cfg.Blog.DefaultAuthor})
	if err != nil {
		log.Fatal().Err(err).Msg("open posts table")
	}
	defer dst.Close()

	n, err := Copy(context.Background(), src, dst)
	if err != nil {
		log.Fatal().Err(err).Int("copied", n).Msg("migration failed")
	}

	log.Info().Int("copied", n).Str("from", from).Str("driver", driver).Msg("migration done")
}

// Copy puts every post of src into dst and reports how many were written.
func Copy(ctx context.Context, src storage.Store, dst *storage.TableStore) (int, error) {
	posts, err := src.ListAll(ctx)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, post := range posts {
		if err = dst.Put(ctx, post); err != nil {
			return n, err
		}
		log.Debug().Str("id", post.Id).Msg("copied")
		n++
	}
	return n, nil
}
