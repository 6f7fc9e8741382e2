package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Clark-Hu/movieweb/internal/catalog"
)

var recomputeMovieID string

var recomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "Rebuild aggregate ratings from the stored votes",
	Long:  "Rebuild the aggregate rating of one movie (--movie) or of every movie in the catalog.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		svc, closeFn, err := openCatalog(ctx, false)
		if err != nil {
			return err
		}
		defer closeFn()

		if recomputeMovieID != "" {
			agg, err := svc.Recompute(ctx, recomputeMovieID)
			if err != nil {
				return err
			}
			rating := "none"
			if agg.Rating != nil {
				rating = fmt.Sprintf("%.2f", *agg.Rating)
			}
			cmd.Printf("%s: rating %s from %d votes\n", recomputeMovieID, rating, agg.VoteCount)
			return nil
		}

		n, err := svc.RecomputeAll(ctx)
		if err != nil {
			return err
		}
		cmd.Printf("recomputed %d movies\n", n)
		return nil
	},
}

var deleteMovieCmd = &cobra.Command{
	Use:   "delete-movie <movie-id>",
	Short: "Delete a catalog movie with its list entries and comments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		svc, closeFn, err := openCatalog(ctx, false)
		if err != nil {
			return err
		}
		defer closeFn()

		deleted, err := svc.DeleteMovie(ctx, args[0])
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("movie %s not found", args[0])
		}
		cmd.Printf("deleted %s\n", args[0])
		return nil
	},
}

var (
	importExternalID string
	importTitle      string
	importYear       int
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Fetch a movie from the metadata provider into the catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		if importExternalID == "" && importTitle == "" {
			return fmt.Errorf("one of --external-id or --title is required")
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		svc, closeFn, err := openCatalog(ctx, true)
		if err != nil {
			return err
		}
		defer closeFn()

		cand := catalog.Candidate{Title: importTitle}
		if importExternalID != "" {
			cand.ExternalID = &importExternalID
		}
		if cmd.Flags().Changed("year") {
			cand.Year = &importYear
		}

		movie, created, err := svc.Import(ctx, cand)
		if err != nil {
			return err
		}
		verb := "found"
		if created {
			verb = "imported"
		}
		cmd.Printf("%s %s (%s)\n", verb, movie.Title, movie.ID)
		return nil
	},
}

func init() {
	recomputeCmd.Flags().StringVar(&recomputeMovieID, "movie", "", "only recompute this movie id")

	importCmd.Flags().StringVar(&importExternalID, "external-id", "", "provider id, e.g. tt0111161")
	importCmd.Flags().StringVar(&importTitle, "title", "", "title to look up")
	importCmd.Flags().IntVar(&importYear, "year", 0, "release year to narrow a title lookup")

	rootCmd.AddCommand(recomputeCmd, deleteMovieCmd, importCmd)
}
