package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/nagiyu/niconico-mylist-assistant/internal/cache"
	"github.com/nagiyu/niconico-mylist-assistant/internal/formatter"
	"github.com/nagiyu/niconico-mylist-assistant/internal/models"
	"github.com/nagiyu/niconico-mylist-assistant/internal/services"
	"github.com/nagiyu/niconico-mylist-assistant/internal/shared"
	"github.com/nagiyu/niconico-mylist-assistant/internal/tasks"
	"github.com/urfave/cli/v3"
)

func queryFromFlags(cmd *cli.Command) (cache.Query, error) {
	fav, err := cache.ParseFlagFilter(cmd.String("favorite"))
	if err != nil {
		return cache.Query{}, err
	}
	skip, err := cache.ParseFlagFilter(cmd.String("skip"))
	if err != nil {
		return cache.Query{}, err
	}
	return cache.Query{Term: cmd.String("term"), Favorite: fav, Skip: skip}, nil
}

// formatFor resolves --format, falling back to the file extension and then JSON.
func formatFor(cmd *cli.Command, path string) (formatter.Format, error) {
	if f := cmd.String("format"); f != "" {
		return formatter.ParseFormat(f)
	}
	return formatter.FormatFromPath(path, formatter.FormatJSON), nil
}

func requireArg(cmd *cli.Command, name string) (string, error) {
	v := strings.TrimSpace(cmd.StringArg(name))
	if v == "" {
		return "", fmt.Errorf("%w: %s", shared.ErrMissingArgument, name)
	}
	return v, nil
}

// withEngine opens a session, syncs the cache and runs fn.
func (r *Runner) withEngine(ctx context.Context, cmd *cli.Command, fn func(*tasks.Engine, *session) error) error {
	s, err := r.open(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	engine := r.engine(s)
	if err := engine.Controller().Sync(ctx); err != nil {
		return err
	}
	return fn(engine, s)
}

func flags(v models.MergedMusicView) string {
	var b strings.Builder
	if v.Favorite {
		b.WriteString("★")
	} else {
		b.WriteString(" ")
	}
	if v.Skip {
		b.WriteString("⊘")
	} else {
		b.WriteString(" ")
	}
	return b.String()
}

func (r *Runner) writeViews(views []models.MergedMusicView) {
	for _, v := range views {
		r.writePlain("[%s] %-12s %s\n", flags(v), v.ExternalID, v.Title)
		r.writePlain("      id: %s", v.CommonID)
		if v.Memo != "" {
			r.writePlain("  memo: %s", v.Memo)
		}
		r.writePlain("\n")
	}
}

// MusicList prints one page of the filtered list, or all of it with --all.
func (r *Runner) MusicList(ctx context.Context, cmd *cli.Command) error {
	q, err := queryFromFlags(cmd)
	if err != nil {
		return err
	}

	return r.withEngine(ctx, cmd, func(engine *tasks.Engine, _ *session) error {
		ctrl := engine.Controller()

		if cmd.Bool("all") {
			views := ctrl.Filter(q)
			return r.emit(cmd, views, func() error {
				r.writePlainHeader(fmt.Sprintf("Music list (%d entries)", len(views)))
				r.writeViews(views)
				return nil
			})
		}

		page := ctrl.Page(q, cmd.Int("page"))
		return r.emit(cmd, page, func() error {
			r.writePlainHeader(fmt.Sprintf("Music list (page %d/%d, %d entries)", page.Page, page.TotalPages, page.TotalItems))
			if len(page.Items) == 0 {
				return r.writePlain("No entries\n")
			}
			r.writeViews(page.Items)
			return nil
		})
	})
}

// MusicAdd bookmarks a video, resolving its title on niconico when --title is omitted.
func (r *Runner) MusicAdd(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "music_id")
	if err != nil {
		return err
	}

	s, err := r.open(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	title := strings.TrimSpace(cmd.String("title"))
	if title == "" && s.lookup != nil {
		info, err := s.lookup.VideoInfo(ctx, id)
		if err != nil {
			return fmt.Errorf("could not resolve title of %s: %w", id, err)
		}
		title = info.Title
	}
	if err := models.ValidateMusic(id, title); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	view, err := r.engine(s).Controller().Create(ctx, models.MusicInput{
		ExternalID: id,
		Title:      title,
		Favorite:   cmd.Bool("favorite"),
		Skip:       cmd.Bool("skip"),
		Memo:       cmd.String("memo"),
	})
	if err != nil {
		return err
	}

	r.logger.Info("music added", "music_id", id, "music_common_id", view.CommonID)
	return r.emit(cmd, view, func() error {
		return r.writePlain("✓ Added %s %s (%s)\n", view.ExternalID, view.Title, view.CommonID)
	})
}

// MusicEdit changes only the fields whose flags were given.
func (r *Runner) MusicEdit(ctx context.Context, cmd *cli.Command) error {
	commonID, err := requireArg(cmd, "music_common_id")
	if err != nil {
		return err
	}

	return r.withEngine(ctx, cmd, func(engine *tasks.Engine, _ *session) error {
		ctrl := engine.Controller()
		view, ok := ctrl.Get(commonID)
		if !ok {
			return fmt.Errorf("%w: %s", shared.ErrRecordNotFound, commonID)
		}

		if cmd.IsSet("title") {
			view.Title = cmd.String("title")
		}
		if cmd.IsSet("favorite") {
			view.Favorite = cmd.Bool("favorite")
		}
		if cmd.IsSet("skip") {
			view.Skip = cmd.Bool("skip")
		}
		if cmd.IsSet("memo") {
			view.Memo = cmd.String("memo")
		}

		updated, err := ctrl.Update(ctx, view)
		if err != nil {
			return err
		}
		return r.emit(cmd, updated, func() error {
			r.writePlain("✓ Updated\n")
			r.writeViews([]models.MergedMusicView{updated})
			return nil
		})
	})
}

// MusicDelete removes a bookmark and its settings.
func (r *Runner) MusicDelete(ctx context.Context, cmd *cli.Command) error {
	commonID, err := requireArg(cmd, "music_common_id")
	if err != nil {
		return err
	}

	return r.withEngine(ctx, cmd, func(engine *tasks.Engine, _ *session) error {
		ctrl := engine.Controller()
		view, ok := ctrl.Get(commonID)
		if !ok {
			return fmt.Errorf("%w: %s", shared.ErrRecordNotFound, commonID)
		}
		if err := ctrl.Delete(ctx, view.CommonID, view.UserSettingID); err != nil {
			return err
		}
		r.logger.Info("music deleted", "music_common_id", commonID)
		return r.writePlain("✓ Deleted %s %s\n", view.ExternalID, view.Title)
	})
}

// MusicImport parses a file and bulk imports it, resolving missing titles first.
func (r *Runner) MusicImport(ctx context.Context, cmd *cli.Command) error {
	path, err := requireArg(cmd, "path")
	if err != nil {
		return err
	}
	format, err := formatFor(cmd, path)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open import file: %w", err)
	}
	defer f.Close()

	items, err := formatter.ParseImport(f, format, formatter.ImportOptions{AllowMissingTitle: true})
	if err != nil {
		return err
	}
	r.logger.Info("parsed import file", "path", path, "format", format, "rows", len(items))

	s, err := r.open(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	prog, stop := r.progress()
	result, err := r.engine(s).Import(ctx, prog, items, tasks.ImportOpts{
		Resolve: tasks.EnrichOpts{
			NumWorkers: cmd.Int("workers"),
			RateLimit:  r.config.Niconico.RateLimit,
		},
	})
	stop()
	if err != nil {
		return err
	}

	return r.emit(cmd, result.Import, func() error {
		r.writePlain("\n")
		r.writePlainHeader("Import Complete!")
		r.writePlain("Added: %d\nSkipped: %d\nFailed: %d\n", result.Import.Success, result.Import.Skip, result.Import.Failure)
		if len(result.Unresolved) > 0 {
			r.writePlain("\nCould not resolve %d titles:\n", len(result.Unresolved))
			for _, u := range result.Unresolved {
				r.writePlain("  - %s: %v\n", u.ExternalID, u.Error)
			}
		}
		if len(result.Import.Details.Failure) > 0 {
			r.writePlain("\nFailed:\n")
			for _, id := range result.Import.Details.Failure {
				r.writePlain("  - %s\n", id)
			}
		}
		return nil
	})
}

// MusicExport writes the filtered list to a file.
func (r *Runner) MusicExport(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("path")
	q, err := queryFromFlags(cmd)
	if err != nil {
		return err
	}
	format, err := formatFor(cmd, path)
	if err != nil {
		return err
	}

	s, err := r.open(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	prog, stop := r.progress()
	written, err := r.engine(s).Export(ctx, prog, q, format, path)
	stop()
	if err != nil {
		return err
	}
	return r.writePlain("✓ Exported to %s\n", written)
}

// MusicSearch searches niconico; with --add it bookmarks results not yet in the list.
func (r *Runner) MusicSearch(ctx context.Context, cmd *cli.Command) error {
	keyword, err := requireArg(cmd, "keyword")
	if err != nil {
		return err
	}

	s, err := r.open(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close()
	if s.lookup == nil {
		return fmt.Errorf("%w: video lookup not configured", shared.ErrServiceUnavailable)
	}

	results, err := s.lookup.Search(ctx, keyword, cmd.Int("limit"))
	if err != nil {
		return err
	}

	if !cmd.Bool("add") {
		return r.emit(cmd, results, func() error {
			r.writePlainHeader(fmt.Sprintf("Search: %s (%d results)", keyword, len(results)))
			r.writeResults(results)
			return nil
		})
	}

	ctrl := r.engine(s).Controller()
	if err := ctrl.Sync(ctx); err != nil {
		return err
	}

	added := []models.MergedMusicView{}
	for _, res := range results {
		if _, ok := ctrl.Find(res.ContentID); ok {
			continue
		}
		view, err := ctrl.SearchAdd(ctx, res.ContentID, res.Title)
		if errors.Is(err, shared.ErrUnauthorized) {
			return err
		}
		if err != nil {
			r.logger.Warn("failed to add search result", "music_id", res.ContentID, "error", err)
			continue
		}
		added = append(added, view)
	}

	return r.emit(cmd, added, func() error {
		r.writePlain("✓ Added %d of %d results\n", len(added), len(results))
		r.writeViews(added)
		return nil
	})
}

func (r *Runner) writeResults(results []services.SearchResult) {
	for i, res := range results {
		r.writePlain("%2d. %-12s %s\n", i+1, res.ContentID, res.Title)
		r.writePlain("    views: %d  posted: %s\n", res.ViewCounter, res.StartTime)
	}
}

// MusicInfo looks up the title of a video.
func (r *Runner) MusicInfo(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "music_id")
	if err != nil {
		return err
	}

	s, err := r.open(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close()
	if s.lookup == nil {
		return fmt.Errorf("%w: video lookup not configured", shared.ErrServiceUnavailable)
	}

	info, err := s.lookup.VideoInfo(ctx, id)
	if err != nil {
		return err
	}
	return r.emit(cmd, info, func() error {
		return r.writePlain("%s %s\n", info.VideoID, info.Title)
	})
}
