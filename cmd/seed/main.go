package main

import (
	"context"
	"flag"
	"strings"

	"github.com/TokDenis/awblog/config"
	"github.com/TokDenis/awblog/services"
	"github.com/TokDenis/awblog/storage"
	"github.com/TokDenis/awblog/types"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/rs/zerolog/log"
)

var tagPool = []string{"go", "web", "databases", "devops", "testing", "ai", "linux", "career"}

func main() {
	var configFile string
	var count int
	flag.StringVar(&configFile, "config", "", "path to a YAML config file")
	flag.IntVar(&count, "n", 20, "number of posts to create")
	flag.Parse()

	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	config.SetupLogging(cfg.Log)

	store, err := storage.Open(cfg.Storage.Backend, cfg.Storage.PostsDir, cfg.Storage.Driver, cfg.Storage.DSN,
		storage.Defaults{Author: cfg.Blog.DefaultAuthor})
	if err != nil {
		log.Fatal().Err(err).Msg("open post store")
	}
	defer store.Close()

	Seed(context.Background(), services.NewAdmin(store), count)
}

// Seed creates n fake posts one after another; ids come from NextId so they
// must not run concurrently.
func Seed(ctx context.Context, admin *services.Admin, n int) {
	log.Info().Int("count", n).Msg("seeding posts")

	created := 0
	for i := 0; i < n; i++ {
		title := strings.TrimSuffix(gofakeit.Sentence(gofakeit.Number(4, 9)), ".")
		slug := services.Slugify(title)

		id, err := admin.NextId(ctx, slug)
		if err != nil {
			log.Error().Err(err).Msg("next id")
			return
		}

		tags := append([]string(nil), tagPool...)
		gofakeit.ShuffleStrings(tags)
		tags = tags[:gofakeit.Number(1, 3)]

		post, err := admin.Create(ctx, types.PostInput{
			Id:          id,
			Title:       title,
			Slug:        slug,
			Description: gofakeit.Sentence(gofakeit.Number(10, 20)),
			ImageUrl:    gofakeit.ImageURL(1200, 630),
			Tags:        tags,
			Author:      gofakeit.Username(),
			ReadingTime: gofakeit.Number(2, 15),
			Content:     paragraphs(gofakeit.Paragraph(3, 5, 20, "\n\n")),
			Featured:    gofakeit.Number(1, 5) == 1,
		})
		if err != nil {
			log.Error().Err(err).Str("id", id).Msg("create post")
			continue
		}

		created++
		log.Info().Str("id", post.Id).Msgf("created %d/%d", i+1, n)
	}

	log.Info().Int("created", created).Msg("seeding done")
}

func paragraphs(text string) string {
	var b strings.Builder
	for _, p := range strings.Split(text, "\n\n") {
		b.WriteString("<p>")
		b.WriteString(p)
		b.WriteString("</p>\n")
	}
	return b.String()
}
