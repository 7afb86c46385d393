package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/wanderhub/wanderhub-chat/config"
	"github.com/wanderhub/wanderhub-chat/globals"
	"github.com/wanderhub/wanderhub-chat/persistence"
	"github.com/wanderhub/wanderhub-chat/types"
)

// A very simple CLI tool for seeding and inspecting chat users and memberships.

var (
	configPath string
	stores     *persistence.Stores
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "wanderhub-chat-admin",
		Short:        "administration tool for the wanderhub chat engine",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.ReadConfiguration(configPath, config.GetFlagSet())
			if err != nil {
				return err
			}
			globals.AppLogger.SetLevel(hclog.LevelFromString(cfg.LogLevel))
			stores, err = persistence.NewStores(cfg)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if stores != nil {
				stores.Close()
			}
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file or directory")

	rootCmd.AddCommand(userAddCmd(), memberAddCmd(), memberRemoveCmd(), memberListCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func userAddCmd() *cobra.Command {
	var username, displayName, avatarUrl string
	cmd := &cobra.Command{
		Use:   "user-add <userId>",
		Short: "create or update a chat user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id: %w", err)
			}
			user := types.User{
				Id:          id,
				Username:    username,
				DisplayName: displayName,
				AvatarUrl:   avatarUrl,
			}
			if err := stores.Users.StoreUser(user); err != nil {
				return err
			}
			fmt.Printf("stored user %d (%s)\n", id, username)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "unique username")
	cmd.Flags().StringVar(&displayName, "display-name", "", "display name")
	cmd.Flags().StringVar(&avatarUrl, "avatar-url", "", "avatar URL")
	return cmd
}

func memberAddCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "member-add <chatroomId> <userId>",
		Short: "add an active member to a chatroom",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatroomId, userId, err := parseIds(args)
			if err != nil {
				return err
			}
			m := types.Membership{
				ChatroomId: chatroomId,
				UserId:     userId,
				Role:       role,
				IsActive:   true,
			}
			if err := stores.Memberships.StoreMembership(m); err != nil {
				return err
			}
			fmt.Printf("user %d is now a %s of chatroom %d\n", userId, role, chatroomId)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", types.RoleMember, "member role (admin/moderator/member)")
	return cmd
}

func memberRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "member-remove <chatroomId> <userId>",
		Short: "deactivate a chatroom membership (the row is kept)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatroomId, userId, err := parseIds(args)
			if err != nil {
				return err
			}
			if err := stores.Memberships.Deactivate(userId, chatroomId); err != nil {
				return err
			}
			fmt.Printf("deactivated user %d in chatroom %d\n", userId, chatroomId)
			return nil
		},
	}
}

func memberListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "member-list <chatroomId>",
		Short: "list the active members of a chatroom",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatroomId, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid chatroom id: %w", err)
			}
			ids, err := stores.Memberships.ActiveMemberIds(chatroomId)
			if err != nil {
				return err
			}
			for _, id := range ids {
				user, err := stores.Users.FindUserById(id)
				if err != nil || user == nil {
					fmt.Printf("%d\n", id)
					continue
				}
				fmt.Printf("%d\t%s\t%s\n", id, user.Username, user.DisplayName)
			}
			return nil
		},
	}
}

func parseIds(args []string) (int64, int64, error) {
	chatroomId, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid chatroom id: %w", err)
	}
	userId, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid user id: %w", err)
	}
	return chatroomId, userId, nil
}
