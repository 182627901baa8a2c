package notify

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/overseer/internal/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TELEGRAM NOTIFIER - Operator alerts & control
// ═══════════════════════════════════════════════════════════════════════════════
//
// Features:
//   💰 Order / position lifecycle alerts
//   🚨 Cooldown and escalation alerts
//   🎛️ Control commands (/status, /enable, /ping)
//
// ═══════════════════════════════════════════════════════════════════════════════

// StatusProvider reports live session summaries for the /status command.
type StatusProvider interface {
	StatusLines() []string
	Balance() (decimal.Decimal, error)
}

// TelegramNotifier implements Notifier over the Telegram bot API.
type TelegramNotifier struct {
	mu      sync.RWMutex
	api     *tgbotapi.BotAPI
	chatID  int64
	running bool
	stopCh  chan struct{}

	statusProvider StatusProvider

	// onForceEnable clears the equity protector trips for all sessions.
	onForceEnable func()
}

// NewTelegramNotifier creates a notifier from a bot token and chat ID.
func NewTelegramNotifier(token, chatIDStr string) (*TelegramNotifier, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token not set")
	}
	chatID, err := strconv.ParseInt(chatIDStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid telegram chat ID: %w", err)
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	n := &TelegramNotifier{
		api:    api,
		chatID: chatID,
		stopCh: make(chan struct{}),
	}
	log.Info().Str("username", api.Self.UserName).Msg("🤖 Telegram notifier initialized")
	return n, nil
}

// SetStatusProvider wires the /status command to live session state.
func (n *TelegramNotifier) SetStatusProvider(p StatusProvider) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statusProvider = p
}

// SetForceEnableCallback wires the /enable operator override.
func (n *TelegramNotifier) SetForceEnableCallback(cb func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onForceEnable = cb
}

// Start begins listening for commands.
func (n *TelegramNotifier) Start() {
	n.mu.Lock()
	if n.running {
		n.mu.Unlock()
		return
	}
	n.running = true
	n.mu.Unlock()

	go n.commandLoop()
	log.Info().Msg("📱 Telegram notifier started")
}

// Stop stops the command loop.
func (n *TelegramNotifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.running {
		return
	}
	n.running = false
	close(n.stopCh)
	log.Info().Msg("Telegram notifier stopped")
}

// ═══════════════════════════════════════════════════════════════════════════════
// NOTIFICATIONS
// ═══════════════════════════════════════════════════════════════════════════════

func (n *TelegramNotifier) NotifyStartup(mode string, symbols []string, balance decimal.Decimal) {
	msg := fmt.Sprintf(`🚀 *OVERSEER STARTED*
━━━━━━━━━━━━━━━━━━━━

📊 Mode: *%s*
🪙 Symbols: *%s*
💰 Balance: *$%s*

Use /help for commands`,
		mode,
		strings.Join(symbols, ", "),
		balance.StringFixed(2),
	)
	n.sendMarkdown(msg)
}

func (n *TelegramNotifier) NotifyOrderPlaced(symbol string, po *types.PendingOrder) {
	emoji := "🟢"
	if po.Side == types.Short {
		emoji = "🔴"
	}
	msg := fmt.Sprintf(`%s *ENTRY ORDER PLACED*

📊 *%s* — %s
━━━━━━━━━━━━━━━━
💵 Limit: *%s*
📦 Size: *%s*
🛑 Stop: *%s*
🎯 Target: *%s*
⏱️ Expires: *%s*`,
		emoji,
		symbol, po.Side,
		po.LimitPrice.String(),
		po.Size.String(),
		po.StopPrice.String(),
		po.TargetPrice.String(),
		po.ExpiryDeadline.Format("15:04:05"),
	)
	n.sendMarkdown(msg)
}

func (n *TelegramNotifier) NotifyOrderCanceled(symbol, orderID, reason string) {
	msg := fmt.Sprintf("⏱️ *ORDER CANCELED*\n\n📊 %s\n🆔 `%s`\n📝 %s", symbol, orderID, reason)
	n.sendMarkdown(msg)
}

func (n *TelegramNotifier) NotifyPositionOpened(symbol string, pos *types.Position) {
	emoji := "🟢"
	if pos.Side == types.Short {
		emoji = "🔴"
	}
	msg := fmt.Sprintf(`%s *POSITION OPENED*

📊 *%s* — %s
💵 Entry: *%s*
📦 Size: *%s*
🛑 Stop: *%s*`,
		emoji,
		symbol, pos.Side,
		pos.EntryPrice.String(),
		pos.Size.String(),
		pos.StopPrice.String(),
	)
	n.sendMarkdown(msg)
}

func (n *TelegramNotifier) NotifyPositionClosed(symbol, tradeID string, pnl decimal.Decimal) {
	emoji := "📈"
	sign := "+"
	if pnl.IsNegative() {
		emoji = "📉"
		sign = ""
	}
	msg := fmt.Sprintf(`%s *POSITION CLOSED*

📊 %s
🆔 `+"`%s`"+`
💵 P&L: *%s$%s*`,
		emoji, symbol, tradeID,
		sign, pnl.StringFixed(2),
	)
	n.sendMarkdown(msg)
}

func (n *TelegramNotifier) NotifyCooldown(symbol, reason string) {
	msg := fmt.Sprintf("🚨 *CIRCUIT BREAKER*\n\n📊 %s\n📝 %s\n\nUse /enable to override", symbol, reason)
	n.sendMarkdown(msg)
}

func (n *TelegramNotifier) NotifyEscalation(symbol, detail string) {
	msg := fmt.Sprintf("🆘 *MANUAL INTERVENTION REQUIRED*\n\n📊 %s\n`%s`", symbol, detail)
	n.sendMarkdown(msg)
}

// ═══════════════════════════════════════════════════════════════════════════════
// COMMAND HANDLING
// ═══════════════════════════════════════════════════════════════════════════════

func (n *TelegramNotifier) commandLoop() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := n.api.GetUpdatesChan(u)

	for {
		select {
		case <-n.stopCh:
			return
		case update := <-updates:
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if update.Message.Chat.ID != n.chatID {
				continue
			}
			n.handleCommand(update.Message)
		}
	}
}

func (n *TelegramNotifier) handleCommand(msg *tgbotapi.Message) {
	switch strings.ToLower(msg.Command()) {
	case "start", "help":
		n.cmdHelp()
	case "status":
		n.cmdStatus()
	case "balance":
		n.cmdBalance()
	case "enable":
		n.cmdEnable()
	case "ping":
		n.send("🏓 Pong!")
	default:
		n.send("❓ Unknown command. Use /help")
	}
}

func (n *TelegramNotifier) cmdHelp() {
	n.sendMarkdown(`🤖 *OVERSEER COMMANDS*
━━━━━━━━━━━━━━━━━━━━

📊 /status — Session status
💰 /balance — Account balance
▶️ /enable — Clear circuit breaker
🏓 /ping — Test connection`)
}

func (n *TelegramNotifier) cmdStatus() {
	n.mu.RLock()
	p := n.statusProvider
	n.mu.RUnlock()

	if p == nil {
		n.send("❌ Status not available")
		return
	}

	msg := "📊 *SESSION STATUS*\n━━━━━━━━━━━━━━━━━━━━\n\n"
	for _, line := range p.StatusLines() {
		msg += line + "\n"
	}
	n.sendMarkdown(msg)
}

func (n *TelegramNotifier) cmdBalance() {
	n.mu.RLock()
	p := n.statusProvider
	n.mu.RUnlock()

	if p == nil {
		n.send("❌ Balance not available")
		return
	}
	bal, err := p.Balance()
	if err != nil {
		n.send("❌ Failed to fetch balance")
		return
	}
	n.sendMarkdown(fmt.Sprintf("💰 *ACCOUNT BALANCE*\n\n💵 Available: *$%s*", bal.StringFixed(2)))
}

func (n *TelegramNotifier) cmdEnable() {
	n.mu.RLock()
	cb := n.onForceEnable
	n.mu.RUnlock()

	if cb != nil {
		cb()
	}
	n.send("▶️ Circuit breaker cleared")
	log.Warn().Msg("Circuit breaker cleared via Telegram")
}

// ═══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ═══════════════════════════════════════════════════════════════════════════════

func (n *TelegramNotifier) send(text string) {
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("Failed to send Telegram message")
	}
}

func (n *TelegramNotifier) sendMarkdown(text string) {
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := n.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("Failed to send Telegram message")
	}
}
