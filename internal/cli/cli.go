package cli

import (
	"fmt"
	"os"

	goflags "github.com/jessevdk/go-flags"
)

// commands holds references to all subcommand structs for inspection/testing.
type commands struct {
	Status  *StatusCommand
	Search  *SearchCommand
	Show    *ShowCommand
	Delete  *DeleteCommand
	Export  *ExportCommand
	Import  *ImportCommand
	Takeout *TakeoutCommand
	Sync    *SyncCommand
	Prune   *PruneCommand
	Purge   *PurgeCommand

	NoteAdd    *NoteAddCommand
	NoteList   *NoteListCommand
	NoteEdit   *NoteEditCommand
	NoteRemove *NoteRemoveCommand

	TagCreate   *TagCreateCommand
	TagList     *TagListCommand
	TagRename   *TagRenameCommand
	TagColor    *TagColorCommand
	TagRemove   *TagRemoveCommand
	TagAssign   *TagAssignCommand
	TagUnassign *TagUnassignCommand
	TagSet      *TagSetCommand
}

// groupCommand is the parent of nested subcommands; it never runs itself.
type groupCommand struct{}

// buildParser constructs the go-flags parser with all subcommands registered.
func buildParser(version string) (*goflags.Parser, *GlobalFlags, *commands) {
	var globals GlobalFlags
	g := &globals

	parser := goflags.NewParser(&globals, goflags.Default)
	parser.Name = "watchvault"
	parser.LongDescription = "Local archive of your video watch history, with notes, tags and portable export."

	cmds := &commands{
		Status:  &StatusCommand{globals: g, version: version},
		Search:  &SearchCommand{globals: g, version: version},
		Show:    &ShowCommand{globals: g, version: version},
		Delete:  &DeleteCommand{globals: g, version: version},
		Export:  &ExportCommand{globals: g},
		Import:  &ImportCommand{globals: g},
		Takeout: &TakeoutCommand{globals: g},
		Sync:    &SyncCommand{globals: g},
		Prune:   &PruneCommand{globals: g},
		Purge:   &PurgeCommand{globals: g},

		NoteAdd:    &NoteAddCommand{globals: g},
		NoteList:   &NoteListCommand{globals: g},
		NoteEdit:   &NoteEditCommand{globals: g},
		NoteRemove: &NoteRemoveCommand{globals: g},

		TagCreate:   &TagCreateCommand{globals: g},
		TagList:     &TagListCommand{globals: g},
		TagRename:   &TagRenameCommand{globals: g},
		TagColor:    &TagColorCommand{globals: g},
		TagRemove:   &TagRemoveCommand{globals: g},
		TagAssign:   &TagAssignCommand{globals: g},
		TagUnassign: &TagUnassignCommand{globals: g},
		TagSet:      &TagSetCommand{globals: g},
	}

	parser.AddCommand("status", "Show archive statistics", "Show archive statistics, sync watermarks, and configuration summary.", cmds.Status)
	parser.AddCommand("search", "Search watch history", "Search watch history by title or channel, with optional filters.", cmds.Search)
	parser.AddCommand("show", "Print one watch event", "Print one watch event with its notes and tags.", cmds.Show)
	parser.AddCommand("delete", "Delete one watch event", "Delete one watch event together with its notes and tag links.", cmds.Delete)

	note, _ := parser.AddCommand("note", "Manage notes", "Add, list, edit and remove notes on watch events.", &groupCommand{})
	note.AddCommand("add", "Add a note to an event", "Add a note to an event.", cmds.NoteAdd)
	note.AddCommand("list", "List an event's notes", "List an event's notes, newest first.", cmds.NoteList)
	note.AddCommand("edit", "Replace a note's text", "Replace a note's text.", cmds.NoteEdit)
	note.AddCommand("rm", "Remove a note", "Remove a note, or all notes of an event with --event.", cmds.NoteRemove)

	tag, _ := parser.AddCommand("tag", "Manage tags", "Create, list, rename, color, remove and assign tags.", &groupCommand{})
	tag.AddCommand("create", "Create a tag", "Create a tag. Fails if the name is taken.", cmds.TagCreate)
	tag.AddCommand("list", "List tags", "List tags alphabetically with the number of tagged events.", cmds.TagList)
	tag.AddCommand("rename", "Rename a tag", "Rename a tag.", cmds.TagRename)
	tag.AddCommand("color", "Set a tag's color", "Set a tag's color, or clear it when no color is given.", cmds.TagColor)
	tag.AddCommand("rm", "Delete a tag", "Delete a tag and remove it from every event.", cmds.TagRemove)
	tag.AddCommand("assign", "Tag events", "Tag one or more events.", cmds.TagAssign)
	tag.AddCommand("unassign", "Untag events", "Remove a tag from one or more events.", cmds.TagUnassign)
	tag.AddCommand("set", "Replace an event's tags", "Replace an event's tags with exactly the given names.", cmds.TagSet)

	parser.AddCommand("export", "Export the archive", "Export the whole archive as one JSON record per line.", cmds.Export)
	parser.AddCommand("import", "Import a portable export", "Import a portable export, skipping events that already exist.", cmds.Import)
	parser.AddCommand("takeout", "Ingest a Takeout watch history", "Ingest a Google Takeout watch-history.json file.", cmds.Takeout)
	parser.AddCommand("sync", "Apply a scrape feed", "Apply an incremental scrape feed, or print the sync checkpoint.", cmds.Sync)
	parser.AddCommand("prune", "Remove old events", "Remove events older than the retention period.", cmds.Prune)
	parser.AddCommand("purge", "Delete ALL archive data", "Delete ALL archive data. Destructive operation with safety prompt.", cmds.Purge)

	return parser, &globals, cmds
}

// Run is the main entry point for the CLI using os.Args.
func Run(version string) error {
	return RunWithArgs(version, nil)
}

// RunWithArgs parses the given args (or os.Args if nil) and executes the matched subcommand.
func RunWithArgs(version string, args []string) error {
	// Handle --version before parser (go-flags requires a subcommand, but
	// --version is valid without one).
	checkArgs := args
	if checkArgs == nil {
		checkArgs = os.Args[1:]
	}
	for _, arg := range checkArgs {
		if arg == "--version" {
			fmt.Printf("watchvault %s\n", version)
			return nil
		}
		if arg == "--" {
			break
		}
	}

	parser, _, _ := buildParser(version)

	var err error
	if args != nil {
		_, err = parser.ParseArgs(args)
	} else {
		_, err = parser.Parse()
	}

	if err != nil {
		if flagsErr, ok := err.(*goflags.Error); ok {
			if flagsErr.Type == goflags.ErrHelp {
				return nil
			}
		}
		return err
	}

	return nil
}
