package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/policybook/internal/cli"
	"github.com/Veraticus/policybook/internal/common"
	"github.com/Veraticus/policybook/internal/model"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func clientsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clients",
		Short: "Manage the client book",
		Long:  `Add, update, remove and inspect clients stored in the workbook.`,
	}

	// Subcommands
	cmd.AddCommand(clientsAddCmd())
	cmd.AddCommand(clientsUpdateCmd())
	cmd.AddCommand(clientsRemoveCmd())
	cmd.AddCommand(clientsListCmd())
	cmd.AddCommand(clientsPayCmd())
	cmd.AddCommand(clientsExistsCmd())

	return cmd
}

// clientFlags are the per-field flags shared by add and update.
type clientFlags struct {
	name        string
	email       string
	company     string
	carModel    string
	nextPayment string
	carYear     int
	price       int
}

func (f *clientFlags) register(flags *pflag.FlagSet) {
	flags.StringVar(&f.name, "name", "", "client full name")
	flags.StringVar(&f.email, "email", "", "client email address")
	flags.StringVar(&f.company, "company", "", "insurance company")
	flags.StringVar(&f.carModel, "car-model", "", "insured car model")
	flags.IntVar(&f.carYear, "car-year", 0, "car production year")
	flags.IntVar(&f.price, "price", 0, "policy price in whole currency units")
	flags.StringVar(&f.nextPayment, "next-payment", "", "next payment date (YYYY-MM-DD)")
}

// apply copies every flag that was set onto base.
func (f *clientFlags) apply(flags *pflag.FlagSet, base model.Client) model.Client {
	if flags.Changed("name") {
		base.Name = strings.TrimSpace(f.name)
	}
	if flags.Changed("email") {
		base.Email = strings.TrimSpace(f.email)
	}
	if flags.Changed("company") {
		base.InsuranceCompany = strings.TrimSpace(f.company)
	}
	if flags.Changed("car-model") {
		base.CarModel = strings.TrimSpace(f.carModel)
	}
	if flags.Changed("car-year") {
		base.CarYear = f.carYear
	}
	if flags.Changed("price") {
		base.Price = f.price
	}
	if flags.Changed("next-payment") {
		base.NextPayment = strings.TrimSpace(f.nextPayment)
	}
	return base
}

func clientsAddCmd() *cobra.Command {
	var f clientFlags

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a new client",
		Long: `Add a new client to the book. The email must not already be in use.
When --next-payment is omitted the first payment is due in one payment period.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(appConfig, bookOnly)
			if err != nil {
				return err
			}
			defer s.Close()

			base := model.Client{
				NextPayment: time.Now().AddDate(0, 0, s.engine.Config().PaymentDays).Format(model.DateLayout),
			}
			client := f.apply(cmd.Flags(), base)
			if err := client.Validate(); err != nil {
				return common.NewUserError("Invalid client", err)
			}

			if err := s.engine.AddClient(cmd.Context(), client); err != nil {
				if errors.Is(err, common.ErrDuplicateEntry) {
					return common.NewUserError(fmt.Sprintf("A client with email %s already exists", client.Email), err)
				}
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Added "+client.Email))
			return nil
		},
	}

	f.register(cmd.Flags())
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("company")
	_ = cmd.MarkFlagRequired("car-model")

	return cmd
}

func clientsUpdateCmd() *cobra.Command {
	var f clientFlags

	cmd := &cobra.Command{
		Use:   "update <email>",
		Short: "Update a client",
		Long:  `Update the client identified by email. Only the fields given as flags change.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			email := args[0]

			s, err := openSession(appConfig, bookOnly)
			if err != nil {
				return err
			}
			defer s.Close()

			current, err := findClient(cmd, s, email)
			if err != nil {
				return err
			}

			updated := f.apply(cmd.Flags(), current)
			if err := updated.Validate(); err != nil {
				return common.NewUserError("Invalid client", err)
			}

			if err := s.engine.UpdateClient(cmd.Context(), email, updated); err != nil {
				if errors.Is(err, common.ErrDuplicateEntry) {
					return common.NewUserError(fmt.Sprintf("A client with email %s already exists", updated.Email), err)
				}
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Updated "+email))
			return nil
		},
	}

	f.register(cmd.Flags())
	return cmd
}

func clientsRemoveCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "remove <email>",
		Short: "Remove a client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			email := args[0]

			if !yes {
				prompter := cli.NewCLIPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
				ok, err := prompter.Confirm(cmd.Context(), "Remove "+email+"?")
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("Nothing removed"))
					return nil
				}
			}

			s, err := openSession(appConfig, bookOnly)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.engine.RemoveClient(cmd.Context(), email); err != nil {
				if errors.Is(err, common.ErrNotFound) {
					return common.NewUserError("No client with email "+email, err)
				}
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Removed "+email))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "remove without asking")
	return cmd
}

func clientsListCmd() *cobra.Command {
	var company string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List clients",
		Long:  `List clients in table order. Overdue clients are highlighted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(appConfig, bookOnly)
			if err != nil {
				return err
			}
			defer s.Close()

			clients, err := s.engine.Clients(cmd.Context())
			if err != nil {
				return err
			}

			if company != "" {
				filtered := clients[:0]
				for _, c := range clients {
					if strings.EqualFold(c.InsuranceCompany, company) {
						filtered = append(filtered, c)
					}
				}
				clients = filtered
			}

			if len(clients) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No clients found"))
				return nil
			}

			headers, rows, overdue := clientRows(clients, time.Now())
			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderTable(headers, rows, overdue))
			return nil
		},
	}

	cmd.Flags().StringVar(&company, "company", "", "only list clients of this insurance company")
	return cmd
}

// clientRows renders clients as table rows and marks rows whose payment is
// due today or earlier.
func clientRows(clients []model.Client, now time.Time) ([]string, [][]string, map[int]bool) {
	headers := []string{"Name", "Email", "Company", "Car", "Year", "Price", "Next Payment"}
	rows := make([][]string, 0, len(clients))
	overdue := make(map[int]bool)
	today := model.Today(now)

	for i, c := range clients {
		rows = append(rows, []string{
			c.Name,
			c.Email,
			c.InsuranceCompany,
			c.CarModel,
			strconv.Itoa(c.CarYear),
			strconv.Itoa(c.Price),
			c.NextPayment,
		})
		if due, err := c.DueDate(); err == nil && !due.After(today) {
			overdue[i] = true
		}
	}
	return headers, rows, overdue
}

func clientsPayCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "pay <email>",
		Short: "Confirm a payment",
		Long:  `Confirm that a client paid and move their next payment date forward.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			email := args[0]

			s, err := openSession(appConfig, bookOnly)
			if err != nil {
				return err
			}
			defer s.Close()

			if !cmd.Flags().Changed("days") {
				days = s.engine.Config().PaymentDays
			}
			if err := s.engine.ConfirmPayment(cmd.Context(), email, days); err != nil {
				if errors.Is(err, common.ErrNotFound) {
					return common.NewUserError("No client with email "+email, err)
				}
				return err
			}

			client, err := findClient(cmd, s, email)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Payment confirmed for %s, next payment %s", email, client.NextPayment)))
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "days to shift the payment date, negative moves it back (default: engine.payment_days)")
	return cmd
}

func clientsExistsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exists <email>",
		Short: "Check whether a client exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(appConfig, bookOnly)
			if err != nil {
				return err
			}
			defer s.Close()

			exists, err := s.engine.ClientExists(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if exists {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(args[0]+" is in the book"))
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatWarning(args[0]+" is not in the book"))
			}
			return nil
		},
	}
}

func findClient(cmd *cobra.Command, s *session, email string) (model.Client, error) {
	clients, err := s.engine.Clients(cmd.Context())
	if err != nil {
		return model.Client{}, err
	}
	for _, c := range clients {
		if c.Email == email {
			return c, nil
		}
	}
	return model.Client{}, common.NewUserError("No client with email "+email, common.ErrNotFound)
}
