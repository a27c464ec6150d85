package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	transports "github.com/rzbill/linelog/internal/cmd/client/transports"
)

// NewWriteCommand constructs the `write` command. Arguments are joined with
// spaces and terminated with a newline; without arguments stdin is sent
// as-is.
func NewWriteCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "write [text...]",
		Short: "Write bytes to the device",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetBool("raw")
			var data []byte
			if len(args) > 0 {
				data = []byte(strings.Join(args, " "))
				if !raw {
					data = append(data, '\n')
				}
			} else {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				data = b
			}
			n, err := deviceTransport(baseURL).Write(cmd.Context(), data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "accepted: %d\n", n)
			return nil
		},
	}
	cmd.Flags().Bool("raw", false, "Do not append a newline to argument text")
	return cmd
}

// NewReadCommand constructs the `read` command.
func NewReadCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read retained bytes, or follow new records",
		RunE: func(cmd *cobra.Command, _ []string) error {
			offset, _ := cmd.Flags().GetInt64("offset")
			limit, _ := cmd.Flags().GetInt("limit")
			all, _ := cmd.Flags().GetBool("all")
			follow, _ := cmd.Flags().GetBool("follow")
			fromStart, _ := cmd.Flags().GetBool("from-start")
			after, _ := cmd.Flags().GetUint64("after")
			count, _ := cmd.Flags().GetInt("count")

			t := deviceTransport(baseURL)
			out := cmd.OutOrStdout()
			if follow {
				return t.Follow(cmd.Context(), transports.FollowRequest{After: after, FromStart: fromStart, Limit: count}, transports.FollowHandler{
					OnRecord: func(r transports.Record) error {
						_, err := out.Write(r.Payload)
						return err
					},
					OnGap: func(g transports.Gap) error {
						fmt.Fprintf(cmd.ErrOrStderr(), "missed %d record(s) from seq %d\n", g.Missed, g.From)
						return nil
					},
				})
			}

			for {
				data, next, eof, err := t.Read(cmd.Context(), offset, limit)
				if err != nil {
					return err
				}
				if eof {
					if !all {
						fmt.Fprintf(cmd.ErrOrStderr(), "end of data at offset %d\n", next)
					}
					return nil
				}
				if _, err := out.Write(data); err != nil {
					return err
				}
				if !all {
					fmt.Fprintf(cmd.ErrOrStderr(), "next offset: %d\n", next)
					return nil
				}
				offset = next
			}
		},
	}
	cmd.Flags().Int64("offset", 0, "Global byte offset to read from")
	cmd.Flags().Int("limit", 0, "Maximum bytes per read (0 = server maximum)")
	cmd.Flags().Bool("all", false, "Keep reading until the end of retained data")
	cmd.Flags().Bool("follow", false, "Stream records as they are committed")
	cmd.Flags().Bool("from-start", false, "With --follow, replay retained records first")
	cmd.Flags().Uint64("after", 0, "With --follow, resume after this commit sequence")
	cmd.Flags().Int("count", 0, "With --follow, stop after N records (0 = infinite)")
	return cmd
}

// NewRecordsCommand constructs the `records` command.
func NewRecordsCommand(baseURL BaseURLFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "records",
		Short: "List retained records as JSON lines",
		RunE: func(cmd *cobra.Command, _ []string) error {
			recs, err := deviceTransport(baseURL).Records(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, r := range recs {
				if err := enc.Encode(decodedRecord(r)); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// NewPositionCommand constructs the `position` command.
func NewPositionCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "position",
		Short: "Resolve a record index and in-record offset to a global position",
		RunE: func(cmd *cobra.Command, _ []string) error {
			entry, _ := cmd.Flags().GetInt("entry")
			offset, _ := cmd.Flags().GetInt("offset")
			pos, err := deviceTransport(baseURL).Position(cmd.Context(), entry, offset)
			var se *transports.StatusError
			if errors.As(err, &se) && se.Code == 404 {
				return fmt.Errorf("no such position (entry %d, offset %d)", entry, offset)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), pos)
			return nil
		},
	}
	cmd.Flags().Int("entry", 0, "Record index, 0 = oldest retained")
	cmd.Flags().Int("offset", 0, "Byte offset within the record")
	return cmd
}

// NewStatsCommand constructs the `stats` command.
func NewStatsCommand(baseURL BaseURLFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show device and archive statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := deviceTransport(baseURL).Stats(cmd.Context())
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := json.Indent(&buf, raw, "", "  "); err != nil {
				return err
			}
			buf.WriteByte('\n')
			_, err = buf.WriteTo(cmd.OutOrStdout())
			return err
		},
	}
}
