package main

import (
	"embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/configma/configma/pkg/errors"
)

//go:embed docs/*.md
var docsFS embed.FS

func newDocsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "docs [TOPIC]",
		Short: "Show long-form documentation topics",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				topics, err := listTopics()
				if err != nil {
					return err
				}
				fmt.Println("Available topics:")
				for _, t := range topics {
					fmt.Printf("  %s\n", t)
				}
				return nil
			}
			return showTopic(args[0])
		},
	}
}

func listTopics() ([]string, error) {
	ents, err := docsFS.ReadDir("docs")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to read embedded docs")
	}
	var topics []string
	for _, ent := range ents {
		topics = append(topics, strings.TrimSuffix(ent.Name(), ".md"))
	}
	sort.Strings(topics)
	return topics, nil
}

func showTopic(topic string) error {
	content, err := docsFS.ReadFile("docs/" + topic + ".md")
	if err != nil {
		return errors.Newf(errors.ErrInvalidInput, "no such topic %q; run 'configma docs' to list topics", topic)
	}

	// Plain text when piped, rich rendering on a terminal.
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		fmt.Print(string(content))
		return nil
	}

	renderer, err := glamour.NewTermRenderer(glamour.WithAutoStyle())
	if err != nil {
		fmt.Print(string(content))
		return nil
	}
	rendered, err := renderer.Render(string(content))
	if err != nil {
		fmt.Print(string(content))
		return nil
	}
	fmt.Print(rendered)
	return nil
}
