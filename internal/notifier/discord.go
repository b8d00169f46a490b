package notifier

import (
	"fmt"
	"log"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/clasedesurf/reservations/internal/config"
	"github.com/clasedesurf/reservations/internal/models"
)

// Notifier tells school staff about things they have to act on.
type Notifier interface {
	NotifyReservation(class models.Class, reservation models.Reservation) error
	NotifyVoucher(reservation models.Reservation, payment models.Payment) error
	NotifyClassDeleted(class models.Class, reservations int64, actorID uint) error
}

// Nop is used when no channel is configured.
type Nop struct{}

func (Nop) NotifyReservation(models.Class, models.Reservation) error { return nil }
func (Nop) NotifyVoucher(models.Reservation, models.Payment) error   { return nil }
func (Nop) NotifyClassDeleted(models.Class, int64, uint) error       { return nil }

type DiscordNotifier struct {
	session   *discordgo.Session
	channelID string
}

func NewDiscordNotifier(session *discordgo.Session, channelID string) *DiscordNotifier {
	return &DiscordNotifier{
		session:   session,
		channelID: channelID,
	}
}

// FromConfig returns a Discord notifier, or Nop when no bot token is set.
func FromConfig(cfg *config.Config) (Notifier, error) {
	if cfg.DiscordBotToken == "" {
		return Nop{}, nil
	}
	session, err := discordgo.New("Bot " + cfg.DiscordBotToken)
	if err != nil {
		return Nop{}, fmt.Errorf("create discord session: %w", err)
	}
	return NewDiscordNotifier(session, cfg.DiscordNotificationsChannelID), nil
}

func (n *DiscordNotifier) NotifyReservation(class models.Class, reservation models.Reservation) error {
	return n.send(reservationMessage(class, reservation))
}

func (n *DiscordNotifier) NotifyVoucher(reservation models.Reservation, payment models.Payment) error {
	return n.send(voucherMessage(reservation, payment))
}

func (n *DiscordNotifier) NotifyClassDeleted(class models.Class, reservations int64, actorID uint) error {
	return n.send(fmt.Sprintf("🗑️ **Class deleted**\n**Class:** %s (#%d) on %s\n**Reservations removed:** %d\n**By user:** %d",
		class.Title, class.ID, class.Date.Format("2006-01-02 15:04"), reservations, actorID))
}

func (n *DiscordNotifier) send(message string) error {
	if n.session == nil {
		return fmt.Errorf("discord session is nil")
	}
	if n.channelID == "" {
		return fmt.Errorf("discord channel ID is empty")
	}

	_, err := n.session.ChannelMessageSend(n.channelID, message)
	if err != nil {
		log.Printf("Failed to send discord message: %v", err)
		return err
	}
	return nil
}

func reservationMessage(class models.Class, reservation models.Reservation) string {
	names := make([]string, 0, len(reservation.Participants))
	for _, p := range reservation.Participants {
		names = append(names, p.Name)
	}

	requestStr := ""
	if reservation.SpecialRequest != "" {
		requestStr = fmt.Sprintf("\n**Special request:** %s", reservation.SpecialRequest)
	}

	amountStr := ""
	if reservation.Payment != nil {
		amountStr = fmt.Sprintf("\n**Amount:** %s", reservation.Payment.Amount.StringFixed(2))
	}

	return fmt.Sprintf("🏄 **New reservation** #%d\n**Class:** %s on %s\n**Participants (%d):** %s%s%s",
		reservation.ID,
		class.Title,
		class.Date.Format("2006-01-02 15:04"),
		reservation.ParticipantCount,
		strings.Join(names, ", "),
		amountStr,
		requestStr,
	)
}

func voucherMessage(reservation models.Reservation, payment models.Payment) string {
	notesStr := ""
	if payment.VoucherNotes != "" {
		notesStr = fmt.Sprintf("\n**Notes:** %s", payment.VoucherNotes)
	}
	return fmt.Sprintf("🧾 **Voucher submitted** for reservation #%d\n**Amount:** %s\n**Method:** %s\n**Reference:** %s%s",
		reservation.ID,
		payment.Amount.StringFixed(2),
		payment.PaymentMethod,
		payment.TransactionID,
		notesStr,
	)
}
