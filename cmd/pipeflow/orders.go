package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync"

	"syreclabs.com/go/faker"

	"github.com/drblury/pipeflow"
)

// Order is the message processed by the demo pipeline.
type Order struct {
	ID       string  `json:"id" msgpack:"id"`
	Customer string  `json:"customer" msgpack:"customer"`
	Product  string  `json:"product" msgpack:"product"`
	Quantity int     `json:"quantity" msgpack:"quantity"`
	Total    float64 `json:"total" msgpack:"total"`
}

// SavedOrder is returned by the order handler.
type SavedOrder struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func fakeOrder() Order {
	quantity := faker.RandomInt(1, 5)
	price := float64(faker.RandomInt(100, 9999)) / 100
	return Order{
		ID:       pipeflow.CreateULID(),
		Customer: faker.Name().Name(),
		Product:  faker.Lorem().Word(),
		Quantity: quantity,
		Total:    math.Round(price*float64(quantity)*100) / 100,
	}
}

type orderHandler struct {
	logger pipeflow.ServiceLogger
}

func (h orderHandler) Process(_ context.Context, o Order) (any, error) {
	if o.Quantity <= 0 {
		return nil, pipeflow.NewUnprocessableMessageError("quantity must be positive", nil)
	}
	return SavedOrder{ID: o.ID, Status: "saved"}, nil
}

func (h orderHandler) OnError(_ context.Context, o Order, err error) {
	h.logger.Error("Order rejected", err, pipeflow.LogFields{"order_id": o.ID})
}

// consoleSubscriber prints every processed order.
type consoleSubscriber struct {
	out io.Writer
}

func (s consoleSubscriber) OnProcessed(ctx context.Context, o Order) error {
	_, err := fmt.Fprintf(s.out, "%s: order %s for %s (%d x %s, %.2f)\n",
		pipeflow.SubscriberName(ctx), o.ID, o.Customer, o.Quantity, o.Product, o.Total)
	return err
}

// syncWriter serialises writes from the caller and the fan-out goroutines.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
