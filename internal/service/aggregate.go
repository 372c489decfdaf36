package service

import (
	"sort"

	"github.com/hebes/smscrm/internal/domain"
	"github.com/hebes/smscrm/internal/phone"
)

type conversationGroup struct {
	key         string
	phones      []string
	phoneCounts map[string]int
	senders     []string
	senderSeen  map[string]bool
	last        *domain.Message
	count       int
}

func (g *conversationGroup) addPhone(p string) {
	if p == "" {
		return
	}
	if g.phoneCounts[p] == 0 {
		g.phones = append(g.phones, p)
	}
	g.phoneCounts[p]++
}

func (g *conversationGroup) addSender(p string) {
	if p == "" || g.senderSeen[p] {
		return
	}
	g.senderSeen[p] = true
	g.senders = append(g.senders, p)
}

// canonicalPhone is the most frequent customer phone; ties go to the one seen
// first.
func (g *conversationGroup) canonicalPhone() string {
	best, bestCount := "", 0
	for _, p := range g.phones {
		if c := g.phoneCounts[p]; c > bestCount {
			best, bestCount = p, c
		}
	}
	return best
}

// BuildConversations groups messages into display conversations. It is pure:
// the same inputs in the same order always give the same output. A non-empty
// senderFilter keeps only conversations that involve that sender phone.
func BuildConversations(messages []domain.Message, senderPhones []domain.SenderPhoneNumber, contacts []domain.Contact, senderFilter string) []domain.Conversation {
	activeByID := make(map[string]string, len(senderPhones))
	activePhones := make(map[string]bool, len(senderPhones))
	for _, sp := range senderPhones {
		if !sp.IsActive {
			continue
		}
		n := phone.Normalize(sp.PhoneNumber)
		activeByID[sp.ID] = n
		activePhones[n] = true
	}

	groups := make(map[string]*conversationGroup)
	var order []string
	for i := range messages {
		m := &messages[i]
		customer := phone.Normalize(m.CustomerPhone())
		key := m.ConversationKey
		if key == "" {
			key = customer
		}
		if key == "" {
			continue
		}

		g, ok := groups[key]
		if !ok {
			g = &conversationGroup{
				key:         key,
				phoneCounts: make(map[string]int),
				senderSeen:  make(map[string]bool),
			}
			groups[key] = g
			order = append(order, key)
		}
		g.count++
		g.addPhone(customer)

		if sp, ok := activeByID[m.SenderPhoneNumberID]; ok {
			g.addSender(sp)
		} else if b := phone.Normalize(m.BusinessPhone()); activePhones[b] {
			g.addSender(b)
		}

		if g.last == nil || m.Timestamp().After(g.last.Timestamp()) {
			g.last = m
		}
	}

	contactByPhone := indexContacts(contacts)
	filter := phone.Normalize(senderFilter)

	out := make([]domain.Conversation, 0, len(order))
	for _, key := range order {
		g := groups[key]
		canonical := g.canonicalPhone()
		if canonical == "" || g.last == nil {
			continue
		}
		if filter != "" && !g.senderSeen[filter] {
			continue
		}

		conv := domain.Conversation{
			ConversationID: key,
			PhoneNumber:    canonical,
			LastMessage: domain.LastMessage{
				ID:        g.last.ID,
				Body:      g.last.Body,
				Direction: g.last.Direction,
				Status:    g.last.Status,
				Timestamp: g.last.Timestamp(),
			},
			Contact:      lookupContact(contactByPhone, canonical, g.phones),
			SenderPhones: append([]string{}, g.senders...),
			MessageCount: g.count,
		}
		out = append(out, conv)
	}

	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := out[i].LastMessage.Timestamp, out[j].LastMessage.Timestamp
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return out[i].ConversationID < out[j].ConversationID
	})
	return out
}

func indexContacts(contacts []domain.Contact) map[string]*domain.Contact {
	idx := make(map[string]*domain.Contact, len(contacts)*2)
	for i := range contacts {
		c := &contacts[i]
		for _, v := range phone.Variants(c.Phone) {
			if _, ok := idx[v]; !ok {
				idx[v] = c
			}
		}
	}
	return idx
}

func lookupContact(idx map[string]*domain.Contact, canonical string, others []string) *domain.Contact {
	for _, v := range phone.Variants(canonical) {
		if c, ok := idx[v]; ok {
			return c
		}
	}
	for _, p := range others {
		if p == canonical {
			continue
		}
		for _, v := range phone.Variants(p) {
			if c, ok := idx[v]; ok {
				return c
			}
		}
	}
	return nil
}
