package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	simulateCurrency string
	simulateRate     string
	simulatePersist  bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "用给定汇率模拟一次阈值判断并触发告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		rate, err := decimal.NewFromString(simulateRate)
		if err != nil || !rate.IsPositive() {
			return errors.New("--rate 必须是大于 0 的数字")
		}
		return getApp().SimulateAlert(cmd.Context(), simulateCurrency, rate, simulatePersist)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateCurrency, "currency", "USD", "币种代码")
	simulateCmd.Flags().StringVar(&simulateRate, "rate", "", "模拟的中间价")
	simulateCmd.Flags().BoolVar(&simulatePersist, "persist", false, "Record the notification time and history as a real alert would")
}
