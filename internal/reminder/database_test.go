package reminder

import (
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("BoltDB", func() {
	var (
		dbPath string
		db     *BoltDB
	)

	BeforeEach(func() {
		dbPath = filepath.Join(GinkgoT().TempDir(), "test.db")
		var err error
		db, err = NewBoltDB(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("SaveSubscription", func() {
		It("should round trip through ListSubscriptions", func() {
			checked := time.Date(2025, 7, 20, 9, 30, 0, 0, time.UTC)
			Expect(db.SaveSubscription(&Subscription{
				ConversationID: "chat-1",
				SubscribedAt:   time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
				LastCheckedAt:  &checked,
				LastResult:     "UPCOMING",
			})).To(Succeed())

			subs, err := db.ListSubscriptions()
			Expect(err).NotTo(HaveOccurred())
			Expect(subs).To(HaveLen(1))
			Expect(subs[0].ConversationID).To(Equal("chat-1"))
			Expect(subs[0].LastCheckedAt.Equal(checked)).To(BeTrue())
			Expect(subs[0].LastResult).To(Equal("UPCOMING"))
		})

		It("should replace an existing subscription", func() {
			Expect(db.SaveSubscription(&Subscription{ConversationID: "chat-1", LastResult: "a"})).To(Succeed())
			Expect(db.SaveSubscription(&Subscription{ConversationID: "chat-1", LastResult: "b"})).To(Succeed())

			subs, err := db.ListSubscriptions()
			Expect(err).NotTo(HaveOccurred())
			Expect(subs).To(HaveLen(1))
			Expect(subs[0].LastResult).To(Equal("b"))
		})
	})

	Describe("DeleteSubscription", func() {
		It("should remove the subscription", func() {
			Expect(db.SaveSubscription(&Subscription{ConversationID: "chat-1"})).To(Succeed())
			Expect(db.DeleteSubscription("chat-1")).To(Succeed())

			subs, err := db.ListSubscriptions()
			Expect(err).NotTo(HaveOccurred())
			Expect(subs).To(BeEmpty())
		})

		It("should not fail for unknown conversations", func() {
			Expect(db.DeleteSubscription("nonexistent")).To(Succeed())
		})
	})

	Describe("reopening", func() {
		It("should keep subscriptions on disk", func() {
			Expect(db.SaveSubscription(&Subscription{ConversationID: "chat-1"})).To(Succeed())
			Expect(db.Close()).To(Succeed())

			var err error
			db, err = NewBoltDB(dbPath)
			Expect(err).NotTo(HaveOccurred())

			registry := NewRegistry(db)
			Expect(registry.Load()).To(Succeed())
			Expect(registry.IsSubscribed("chat-1")).To(BeTrue())
		})
	})
})
