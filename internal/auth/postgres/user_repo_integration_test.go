// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contactbook Contributors

//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/contactbook/contactbook/internal/auth"
	"github.com/contactbook/contactbook/internal/auth/postgres"
)

var _ = Describe("UserRepository", func() {
	var (
		ctx  context.Context
		repo *postgres.UserRepository
		user *auth.User
	)

	BeforeEach(func() {
		ctx = context.Background()
		repo = postgres.NewUserRepository(testPool)

		var err error
		user, err = auth.NewUser(ulid.Make().String()+"@example.com", "$argon2id$hash", auth.TierStandard)
		Expect(err).NotTo(HaveOccurred())
		user.CreatedAt = user.CreatedAt.Truncate(time.Microsecond)
		user.UpdatedAt = user.UpdatedAt.Truncate(time.Microsecond)
		Expect(repo.Create(ctx, user)).To(Succeed())
	})

	AfterEach(func() {
		_, _ = testPool.Exec(ctx, `DELETE FROM users WHERE id = $1`, user.ID.String())
	})

	It("finds users by email and id", func() {
		byEmail, err := repo.FindByEmail(ctx, user.Email)
		Expect(err).NotTo(HaveOccurred())
		Expect(byEmail.ID).To(Equal(user.ID))
		Expect(byEmail.Tier).To(Equal(auth.TierStandard))
		Expect(byEmail.ActiveToken).To(BeNil())

		byID, err := repo.FindByID(ctx, user.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(byID.Email).To(Equal(user.Email))
		Expect(byID.CreatedAt.Equal(user.CreatedAt)).To(BeTrue())
	})

	It("rejects a second user with the same email", func() {
		dup, err := auth.NewUser(user.Email, "other", auth.TierPremium)
		Expect(err).NotTo(HaveOccurred())

		err = repo.Create(ctx, dup)
		Expect(errors.Is(err, auth.ErrDuplicateEmail)).To(BeTrue())
	})

	It("reports unknown users as not found", func() {
		_, err := repo.FindByEmail(ctx, "nobody@example.com")
		Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())

		_, err = repo.FindByID(ctx, ulid.Make())
		Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())

		err = repo.UpdateToken(ctx, ulid.Make(), nil)
		Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())
	})

	It("sets and clears the active token", func() {
		digest := auth.HashToken("bearer")
		Expect(repo.UpdateToken(ctx, user.ID, &digest)).To(Succeed())

		stored, err := repo.FindByID(ctx, user.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.ActiveToken).NotTo(BeNil())
		Expect(*stored.ActiveToken).To(Equal(digest))

		Expect(repo.UpdateToken(ctx, user.ID, nil)).To(Succeed())
		stored, err = repo.FindByID(ctx, user.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.ActiveToken).To(BeNil())
	})

	It("patches only the provided fields", func() {
		tier := auth.TierVIP
		updated, err := repo.UpdateFields(ctx, user.ID, auth.UserPatch{Tier: &tier})
		Expect(err).NotTo(HaveOccurred())
		Expect(updated.Tier).To(Equal(auth.TierVIP))
		Expect(updated.PasswordHash).To(Equal(user.PasswordHash))

		hash := "$argon2id$new"
		updated, err = repo.UpdateFields(ctx, user.ID, auth.UserPatch{PasswordHash: &hash})
		Expect(err).NotTo(HaveOccurred())
		Expect(updated.PasswordHash).To(Equal(hash))
		Expect(updated.Tier).To(Equal(auth.TierVIP))
	})

	It("drives the session store end to end", func() {
		sessions, err := auth.NewUserSessionStore(repo)
		Expect(err).NotTo(HaveOccurred())

		Expect(sessions.SetActiveToken(ctx, user.ID, "t1")).To(Succeed())
		Expect(sessions.SetActiveToken(ctx, user.ID, "t2")).To(Succeed())

		active, err := sessions.IsActiveToken(ctx, user.ID, "t1")
		Expect(err).NotTo(HaveOccurred())
		Expect(active).To(BeFalse())

		active, err = sessions.IsActiveToken(ctx, user.ID, "t2")
		Expect(err).NotTo(HaveOccurred())
		Expect(active).To(BeTrue())

		Expect(sessions.ClearActiveToken(ctx, user.ID)).To(Succeed())
		active, err = sessions.IsActiveToken(ctx, user.ID, "t2")
		Expect(err).NotTo(HaveOccurred())
		Expect(active).To(BeFalse())
	})
})
