package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/api/middleware"
	internalorders "github.com/angelmondragon/marketplace-backend/internal/orders"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

type stubOrdersService struct {
	placeFn  func(ctx context.Context, input internalorders.PlaceOrderInput) (*internalorders.PlaceOrderResult, error)
	updateFn func(ctx context.Context, input internalorders.UpdateLineStatusInput) (*models.Order, error)
	cancelFn func(ctx context.Context, input internalorders.CancelLineInput) (*models.Order, error)
	getFn    func(ctx context.Context, orderID uuid.UUID, actor internalorders.Actor) (*models.Order, error)
}

func (s *stubOrdersService) PlaceOrder(ctx context.Context, input internalorders.PlaceOrderInput) (*internalorders.PlaceOrderResult, error) {
	if s.placeFn != nil {
		return s.placeFn(ctx, input)
	}
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not stubbed")
}

func (s *stubOrdersService) UpdateLineStatus(ctx context.Context, input internalorders.UpdateLineStatusInput) (*models.Order, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, input)
	}
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not stubbed")
}

func (s *stubOrdersService) CancelLine(ctx context.Context, input internalorders.CancelLineInput) (*models.Order, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, input)
	}
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not stubbed")
}

func (s *stubOrdersService) GetOrder(ctx context.Context, orderID uuid.UUID, actor internalorders.Actor) (*models.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID, actor)
	}
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not stubbed")
}

func authed(req *http.Request, userID uuid.UUID, role enums.UserRole) *http.Request {
	ctx := middleware.WithCaller(req.Context(), middleware.Caller{UserID: userID.String(), Role: string(role)})
	return req.WithContext(ctx)
}

func withParams(req *http.Request, params map[string]string) *http.Request {
	routeCtx := chi.NewRouteContext()
	for key, value := range params {
		routeCtx.URLParams.Add(key, value)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func sampleOrder(customerID uuid.UUID) *models.Order {
	return &models.Order{
		ID:               uuid.New(),
		CustomerID:       customerID,
		TotalCents:       13000,
		DeliveryFeeCents: 3000,
		Status:           enums.OrderStatusPending,
		Lines: []models.OrderLine{{
			ID:         uuid.New(),
			Position:   0,
			SellerID:   uuid.New(),
			ProductID:  uuid.New(),
			Name:       "Denim jacket",
			Color:      "blue",
			PriceCents: 10000,
			Quantity:   1,
			Status:     enums.LineStatusPending,
		}},
	}
}

const placeBody = `{
	"totalAmount": "130.00",
	"deliveryFee": "30",
	"items": [{
		"sellerId": "%s",
		"productId": "%s",
		"name": "Denim jacket",
		"color": "blue",
		"price": "100.00",
		"quantity": 1
	}],
	"deliveryAddress": {
		"locality": "Ikeja",
		"region": "Lagos",
		"country": "NG",
		"phone": "+2348031234567"
	}
}`

func TestPlaceOrderMapsRequest(t *testing.T) {
	buyerID := uuid.New()
	sellerID := uuid.New()
	productID := uuid.New()
	svc := &stubOrdersService{
		placeFn: func(ctx context.Context, input internalorders.PlaceOrderInput) (*internalorders.PlaceOrderResult, error) {
			if input.CustomerID != buyerID || input.Actor.UserID != buyerID {
				t.Fatalf("customer should default to the caller, got %s", input.CustomerID)
			}
			if input.Actor.Role != enums.UserRoleBuyer {
				t.Fatalf("unexpected role %s", input.Actor.Role)
			}
			if len(input.Items) != 1 || input.Items[0].SellerID != sellerID || input.Items[0].ProductID != productID {
				t.Fatalf("unexpected items %+v", input.Items)
			}
			if input.TotalAmount.String() != "130" || input.DeliveryFee.String() != "30" {
				t.Fatalf("unexpected amounts %s %s", input.TotalAmount, input.DeliveryFee)
			}
			if input.DeliveryAddress.Region != "Lagos" {
				t.Fatalf("unexpected address %+v", input.DeliveryAddress)
			}
			return &internalorders.PlaceOrderResult{
				Order:            sampleOrder(buyerID),
				AuthorizationURL: "https://checkout.example/pay",
				Reference:        "cs_123",
			}, nil
		},
	}

	body := strings.NewReader(fmt.Sprintf(placeBody, sellerID, productID))
	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/orders", body), buyerID, enums.UserRoleBuyer)
	resp := httptest.NewRecorder()
	PlaceOrder(svc, logger.Nop())(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data internalorders.OrderDTO `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.AuthorizationURL != "https://checkout.example/pay" || envelope.Data.PaymentReference != "cs_123" {
		t.Fatalf("payment redirect missing: %+v", envelope.Data)
	}
	if envelope.Data.TotalAmount.String() != "130" {
		t.Fatalf("expected total in major units, got %s", envelope.Data.TotalAmount)
	}
}

func TestPlaceOrderRejectsBadBodies(t *testing.T) {
	called := false
	svc := &stubOrdersService{
		placeFn: func(ctx context.Context, input internalorders.PlaceOrderInput) (*internalorders.PlaceOrderResult, error) {
			called = true
			return nil, nil
		},
	}
	cases := map[string]string{
		"empty":         ``,
		"no items":      `{"totalAmount":"1","deliveryFee":"0","items":[],"deliveryAddress":{"locality":"a","region":"b","country":"c","phone":"+14155550123"}}`,
		"bad seller id": fmt.Sprintf(placeBody, "nope", uuid.New()),
		"unknown field": `{"surprise":true}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body)), uuid.New(), enums.UserRoleBuyer)
			resp := httptest.NewRecorder()
			PlaceOrder(svc, logger.Nop())(resp, req)
			if resp.Code != http.StatusBadRequest {
				t.Fatalf("expected 400 got %d: %s", resp.Code, resp.Body.String())
			}
		})
	}
	if called {
		t.Fatal("service must not be called for invalid bodies")
	}
}

func TestPlaceOrderRequiresIdentity(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{}`))
	resp := httptest.NewRecorder()
	PlaceOrder(&stubOrdersService{}, logger.Nop())(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestUpdateLineStatus(t *testing.T) {
	sellerID := uuid.New()
	orderID := uuid.New()
	svc := &stubOrdersService{
		updateFn: func(ctx context.Context, input internalorders.UpdateLineStatusInput) (*models.Order, error) {
			if input.OrderID != orderID || input.LineIndex != 2 || input.Status != enums.LineStatusShipped {
				t.Fatalf("unexpected input %+v", input)
			}
			if input.Actor.UserID != sellerID || input.Actor.Role != enums.UserRoleSeller {
				t.Fatalf("unexpected actor %+v", input.Actor)
			}
			return sampleOrder(uuid.New()), nil
		},
	}

	req := httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"status":"shipped"}`))
	req = withParams(authed(req, sellerID, enums.UserRoleSeller), map[string]string{"orderId": orderID.String(), "lineIndex": "2"})
	resp := httptest.NewRecorder()
	UpdateLineStatus(svc, logger.Nop())(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestUpdateLineStatusErrors(t *testing.T) {
	orderID := uuid.New().String()
	cases := []struct {
		name   string
		index  string
		body   string
		svcErr error
		want   int
	}{
		{name: "negative index", index: "-1", body: `{"status":"shipped"}`, want: http.StatusBadRequest},
		{name: "unknown status", index: "0", body: `{"status":"lost"}`, want: http.StatusBadRequest},
		{name: "illegal transition", index: "0", body: `{"status":"delivered"}`, svcErr: pkgerrors.New(pkgerrors.CodeStateConflict, "invalid transition"), want: http.StatusUnprocessableEntity},
		{name: "not allowed", index: "0", body: `{"status":"shipped"}`, svcErr: pkgerrors.New(pkgerrors.CodeForbidden, "forbidden"), want: http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubOrdersService{
				updateFn: func(ctx context.Context, input internalorders.UpdateLineStatusInput) (*models.Order, error) {
					return nil, tc.svcErr
				},
			}
			req := httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(tc.body))
			req = withParams(authed(req, uuid.New(), enums.UserRoleSeller), map[string]string{"orderId": orderID, "lineIndex": tc.index})
			resp := httptest.NewRecorder()
			UpdateLineStatus(svc, logger.Nop())(resp, req)
			if resp.Code != tc.want {
				t.Fatalf("expected %d got %d: %s", tc.want, resp.Code, resp.Body.String())
			}
		})
	}
}

func TestCancelLine(t *testing.T) {
	buyerID := uuid.New()
	orderID := uuid.New()
	lineID := uuid.New()
	svc := &stubOrdersService{
		cancelFn: func(ctx context.Context, input internalorders.CancelLineInput) (*models.Order, error) {
			if input.OrderID != orderID || input.LineID != lineID || input.Actor.UserID != buyerID {
				t.Fatalf("unexpected input %+v", input)
			}
			return sampleOrder(buyerID), nil
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = withParams(authed(req, buyerID, enums.UserRoleBuyer), map[string]string{"orderId": orderID.String(), "lineId": lineID.String()})
	resp := httptest.NewRecorder()
	CancelLine(svc, logger.Nop())(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}

	svc.cancelFn = func(ctx context.Context, input internalorders.CancelLineInput) (*models.Order, error) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "item is already cancelled")
	}
	resp = httptest.NewRecorder()
	CancelLine(svc, logger.Nop())(resp, req)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
}

func TestDetail(t *testing.T) {
	buyerID := uuid.New()
	order := sampleOrder(buyerID)
	svc := &stubOrdersService{
		getFn: func(ctx context.Context, orderID uuid.UUID, actor internalorders.Actor) (*models.Order, error) {
			if orderID != order.ID {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return order, nil
		},
	}

	req := withParams(authed(httptest.NewRequest(http.MethodGet, "/", nil), buyerID, enums.UserRoleBuyer), map[string]string{"orderId": order.ID.String()})
	resp := httptest.NewRecorder()
	Detail(svc, logger.Nop())(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}

	req = withParams(authed(httptest.NewRequest(http.MethodGet, "/", nil), buyerID, enums.UserRoleBuyer), map[string]string{"orderId": uuid.NewString()})
	resp = httptest.NewRecorder()
	Detail(svc, logger.Nop())(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}

	req = withParams(authed(httptest.NewRequest(http.MethodGet, "/", nil), buyerID, enums.UserRoleBuyer), map[string]string{"orderId": "bad"})
	resp = httptest.NewRecorder()
	Detail(svc, logger.Nop())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
