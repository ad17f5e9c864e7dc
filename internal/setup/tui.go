// Package setup provides the interactive terminal configuration wizard.
package setup

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/penny/config"
	"gopkg.in/yaml.v3"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// GeneratedConfigFile is where the wizard saves its result.
const GeneratedConfigFile = "config.gen.yaml"

// RunTUI launches the terminal configuration wizard and writes the chosen
// settings to a YAML config file.
func RunTUI() error {
	var (
		platform        string
		quote           string
		maxPrice        string
		minVolume       string
		threshold       string
		windowMinutes   string
		positionSize    string
		maxPositions    string
		profitTarget    string
		stopLoss        string
		trailing        bool
		trailingStop    string
		makerFee        string
		takerFee        string
		scanIntervalRaw string
		confirm         bool
	)

	// defaults
	quote = "USDT"
	maxPrice = "1"
	minVolume = "100000"
	threshold = "1.5"
	windowMinutes = "10"
	positionSize = "100"
	maxPositions = "5"
	profitTarget = "3"
	stopLoss = "-5"
	trailing = true
	trailingStop = "2"
	makerFee = "0.25"
	takerFee = "0.4"
	scanIntervalRaw = "1m"

	// step 1: platform
	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(headerStyle.Render("PENNY CONFIG WIZARD"))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Paper-trade momentum on cheap coins.\n"))

	fmt.Println(stepStyle.Render("STEP 1: EXCHANGE"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Select Exchange Platform").
				Options(
					huh.NewOption("Binance", "binance"),
					huh.NewOption("Bybit", "bybit"),
				).
				Value(&platform),
			huh.NewInput().
				Title("Quote Currency").
				Description("e.g. USDT").
				Value(&quote).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("quote currency cannot be empty")
					}
					return nil
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	// step 2: scanner
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("PENNY CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 2: SCANNER"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Max Coin Price").
				Description("Only coins at or below this price are scanned").
				Value(&maxPrice).
				Validate(validatePositiveDecimal),
			huh.NewInput().
				Title("Min 24h Volume").
				Description("Quote-currency volume floor (e.g. 100000)").
				Value(&minVolume).
				Validate(validatePositiveDecimal),
			huh.NewInput().
				Title("Momentum Threshold %").
				Description("Minimum price change over the window (e.g. 1.5)").
				Value(&threshold).
				Validate(validatePositiveDecimal),
			huh.NewInput().
				Title("Momentum Window (minutes)").
				Value(&windowMinutes).
				Validate(validatePositiveInt),
			huh.NewInput().
				Title("Scan Interval").
				Description("Duration string (e.g. 30s, 1m, 5m)").
				Value(&scanIntervalRaw).
				Validate(func(s string) error {
					_, err := time.ParseDuration(s)
					return err
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	// step 3: positions and exits
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("PENNY CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 3: POSITIONS"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Position Size").
				Description("Fixed spend per entry, in quote currency").
				Value(&positionSize).
				Validate(validatePositiveDecimal),
			huh.NewInput().
				Title("Max Open Positions").
				Value(&maxPositions).
				Validate(validatePositiveInt),
			huh.NewInput().
				Title("Profit Target %").
				Value(&profitTarget).
				Validate(validatePositiveDecimal),
			huh.NewInput().
				Title("Stop Loss %").
				Description("Must be negative (e.g. -5)").
				Value(&stopLoss).
				Validate(func(s string) error {
					d, err := decimal.NewFromString(s)
					if err != nil {
						return fmt.Errorf("must be a valid number")
					}
					if d.GreaterThanOrEqual(decimal.Zero) {
						return fmt.Errorf("must be negative")
					}
					return nil
				}),
			huh.NewConfirm().
				Title("Enable Trailing Profit?").
				Value(&trailing),
			huh.NewInput().
				Title("Trailing Stop %").
				Description("Retreat from peak that triggers the sell").
				Value(&trailingStop).
				Validate(validatePositiveDecimal),
		),
	).Run()
	if err != nil {
		return err
	}

	// step 4: fees
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("PENNY CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 4: FEES"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Maker Fee %").
				Value(&makerFee).
				Validate(validatePositiveDecimal),
			huh.NewInput().
				Title("Taker Fee %").
				Value(&takerFee).
				Validate(validatePositiveDecimal),
		),
	).Run()
	if err != nil {
		return err
	}

	// confirmation
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("PENNY CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("FINAL CONFIRMATION"))

	summary := fmt.Sprintf(
		"Platform: %s\nQuote: %s\nMax price: %s\nMomentum: %s%% over %sm\nPosition: %s x%s\nTarget/Stop: %s%% / %s%%\n",
		platform, quote, maxPrice, threshold, windowMinutes, positionSize, maxPositions, profitTarget, stopLoss,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save and start").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}

	if !confirm {
		return fmt.Errorf("setup cancelled by user")
	}

	windowInt, _ := strconv.Atoi(windowMinutes)
	maxPositionsInt, _ := strconv.Atoi(maxPositions)
	scanInterval, _ := time.ParseDuration(scanIntervalRaw)

	cfgTmp := config.ConfigTmp{
		Platform:              platform,
		QuoteCurrency:         quote,
		MaxPrice:              maxPrice,
		MinVolume24h:          minVolume,
		MomentumThreshold:     threshold,
		MomentumWindowMinutes: windowInt,
		PositionSize:          positionSize,
		MaxPositions:          maxPositionsInt,
		ProfitTargetPercent:   profitTarget,
		StopLossPercent:       stopLoss,
		TrailingProfitEnabled: &trailing,
		TrailingStopPercent:   trailingStop,
		MakerFeePercent:       makerFee,
		TakerFeePercent:       takerFee,
		ScanInterval:          scanInterval,
	}

	data, err := yaml.Marshal(cfgTmp)
	if err != nil {
		return fmt.Errorf("failed to generate yaml: %w", err)
	}

	if err := os.WriteFile(GeneratedConfigFile, data, 0644); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s\nStarting bot...", GeneratedConfigFile)))
	time.Sleep(1500 * time.Millisecond) // small pause to read success message
	return nil
}

func validatePositiveDecimal(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if d.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func validatePositiveInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("must be a whole number")
	}
	if n < 1 {
		return fmt.Errorf("must be at least 1")
	}
	return nil
}
