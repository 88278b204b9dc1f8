package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"lectern/internal/api"
)

func newPapersCommand(ctx *commandContext) *cobra.Command {
	papersCmd := &cobra.Command{
		Use:     "papers",
		Aliases: []string{"paper"},
		Short:   "Browse and maintain the paper library",
	}

	papersCmd.AddCommand(newPapersListCommand(ctx))
	papersCmd.AddCommand(newPapersShowCommand(ctx))
	papersCmd.AddCommand(newPapersTreeCommand(ctx))
	papersCmd.AddCommand(newPapersSaveCommand(ctx))
	papersCmd.AddCommand(newPapersDeleteCommand(ctx))
	papersCmd.AddCommand(newPapersDedupeCommand(ctx))

	return papersCmd
}

func newPapersListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List indexed papers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				papers, err := client.Papers(cmd.Context())
				if err != nil {
					return err
				}
				return emit(ctx, cmd, api.PaperListResponse{Papers: papers}, func() error {
					if len(papers) == 0 {
						fmt.Fprintln(cmd.OutOrStdout(), "Library is empty")
						return nil
					}
					fmt.Fprint(cmd.OutOrStdout(), renderTable(
						[]string{"ID", "Title", "Translated", "Updated"},
						buildPaperRows(papers),
						nil,
					))
					return nil
				})
			})
		},
	}
}

func newPapersShowCommand(ctx *commandContext) *cobra.Command {
	var lang string

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a paper's articles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lang = strings.ToLower(strings.TrimSpace(lang))
			switch lang {
			case "en", "zh", "both":
			default:
				return fmt.Errorf("--lang must be en, zh or both")
			}
			return ctx.withClient(func(client *api.Client) error {
				paper, err := client.Paper(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return emit(ctx, cmd, paper, func() error {
					out := cmd.OutOrStdout()
					if len(paper.Missing) > 0 {
						fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s is missing %s\n", paper.Paper.ID, strings.Join(paper.Missing, ", "))
					}
					if lang == "en" || lang == "both" {
						fmt.Fprintln(out, strings.TrimRight(paper.ArticleEN, "\n"))
					}
					if lang == "both" {
						fmt.Fprintln(out)
						fmt.Fprintln(out, strings.Repeat("-", 40))
						fmt.Fprintln(out)
					}
					if lang == "zh" || lang == "both" {
						fmt.Fprintln(out, strings.TrimRight(paper.ArticleZH, "\n"))
					}
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "both", "Article to print: en, zh or both")
	return cmd
}

func newPapersTreeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "tree <id>",
		Short: "Print a paper's bilingual section tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				raw, err := client.Tree(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.outputFormat() == outputYAML {
					var generic any
					if err := json.Unmarshal(raw, &generic); err != nil {
						return err
					}
					return writeYAML(cmd, generic)
				}
				var pretty bytes.Buffer
				if err := json.Indent(&pretty, raw, "", "  "); err != nil {
					return err
				}
				pretty.WriteByte('\n')
				_, err = cmd.OutOrStdout().Write(pretty.Bytes())
				return err
			})
		},
	}
}

func newPapersSaveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "save <id> <artifact> <file>",
		Short: "Replace an editable artifact (article_en, article_zh, rag_md, rag_tree, metadata)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[2])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[2], err)
			}
			return ctx.withClient(func(client *api.Client) error {
				if err := client.SaveArtifact(cmd.Context(), args[0], args[1], data); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %s for %s (%d bytes)\n", args[1], args[0], len(data))
				return nil
			})
		},
	}
}

func newPapersDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete papers and all of their artifacts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				for _, id := range args {
					if err := client.DeletePaper(cmd.Context(), id); err != nil {
						return fmt.Errorf("%s: %w", id, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
				}
				return nil
			})
		},
	}
}

func newPapersDedupeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "dedupe",
		Short: "Drop index entries whose paper directory no longer exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Dedupe(cmd.Context())
				if err != nil {
					return err
				}
				return emit(ctx, cmd, resp, func() error {
					out := cmd.OutOrStdout()
					if len(resp.Removed) == 0 {
						fmt.Fprintln(out, "Index is clean")
						return nil
					}
					fmt.Fprintf(out, "Removed %d stale entries: %s\n", len(resp.Removed), strings.Join(resp.Removed, ", "))
					return nil
				})
			})
		},
	}
}

func newMatchCommand(ctx *commandContext) *cobra.Command {
	var kind string
	var lang string

	cmd := &cobra.Command{
		Use:   "match <id> <fragment>",
		Short: "Find the counterpart of a heading, paragraph or table in the other language",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Match(cmd.Context(), args[0], api.MatchRequest{
					Fragment: args[1],
					Kind:     kind,
					Lang:     lang,
				})
				if err != nil {
					return err
				}
				return emit(ctx, cmd, resp, func() error {
					if !resp.Found {
						fmt.Fprintln(cmd.OutOrStdout(), "No match")
						return nil
					}
					fmt.Fprintln(cmd.OutOrStdout(), resp.Text)
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVarP(&kind, "kind", "k", "text", "Fragment kind: title, text or table")
	cmd.Flags().StringVarP(&lang, "lang", "l", "zh", "Language the fragment is written in: en or zh")
	return cmd
}
